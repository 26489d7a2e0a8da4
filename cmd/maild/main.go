// ABOUTME: CLI entrypoint for the MAIL daemon: serve and setup subcommands, signal handling.
// ABOUTME: Wires registry, interswarm router, SQLite store, tenant manager, and the HTTP server together.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/2389-research/mail/internal/action"
	"github.com/2389-research/mail/internal/agent"
	"github.com/2389-research/mail/internal/interswarm"
	"github.com/2389-research/mail/internal/message"
	"github.com/2389-research/mail/internal/registry"
	"github.com/2389-research/mail/internal/runtime"
	"github.com/2389-research/mail/internal/server"
	"github.com/2389-research/mail/internal/store"
	"github.com/2389-research/mail/internal/toolcatalog"
)

var version = "dev"

func main() {
	_ = server.LoadDotEnv(".env")

	if cfg, ok := parseSetupArgs(os.Args[1:]); ok {
		os.Exit(runSetup(cfg))
	}

	if parseTopFlags(os.Args[1:]) {
		fmt.Printf("maild %s\n", version)
		os.Exit(0)
	}

	os.Exit(runServe())
}

// parseTopFlags parses the top-level flags (after stripping an optional
// "serve" subcommand name) and reports whether -version was passed.
func parseTopFlags(args []string) bool {
	var showVersion bool
	fs := flag.NewFlagSet("maild", flag.ContinueOnError)
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.Usage = func() { printHelp(os.Stderr, version) }

	filtered := args
	if len(filtered) > 0 && filtered[0] == "serve" {
		filtered = filtered[1:]
	}

	if err := fs.Parse(filtered); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	return showVersion
}

// federationNamespace is the reserved tenant namespace backing this swarm's
// interswarm identity — the runtime inbound interswarm messages are
// delivered to, distinct from any per-caller tenant namespace.
func federationNamespace(swarmName string) string {
	return "swarm_" + swarmName
}

func runServe() int {
	cfg, err := server.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(cfg.Home, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "error: create %s: %v\n", cfg.Home, err)
		return 1
	}

	layout, err := store.NewLayout(cfg.Home)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	db, err := store.Open(layout.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open store: %v\n", err)
		return 1
	}
	defer db.Close()

	reg := registry.New(cfg.SwarmName, cfg.PublicBaseURL)
	if err := reg.Load(cfg.SwarmRegistryFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: load swarm registry: %v\n", err)
	}

	if err := reg.LoadBootstrapFile(bootstrapFilePath(cfg.Home)); err != nil {
		fmt.Fprintf(os.Stderr, "warning: load swarms.yaml: %v\n", err)
	}

	if unresolved := reg.ValidateEnvironmentVariables(); len(unresolved) > 0 {
		for ref, ok := range unresolved {
			if !ok {
				fmt.Fprintf(os.Stderr, "warning: swarm auth token reference %s is unresolved\n", ref)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg.StartHealthChecks(ctx)
	defer reg.StopHealthChecks()

	// tenants is assigned after router so the router's local-delivery
	// closure can reference it; the closure only runs after both are live.
	var tenants *server.TenantManager
	fedNamespace := federationNamespace(cfg.SwarmName)

	router := interswarm.New(cfg.SwarmName, reg, func(m message.MAILMessage) error {
		return tenants.Get(fedNamespace).Runtime.Submit(m)
	})
	router.Start()
	defer router.Stop()

	agentsFactory := defaultAgentsFactory(cfg)
	actionsFactory := func(namespace string) runtime.ActionExecutor {
		return action.NewExecutor()
	}

	tenants = server.NewTenantManager(agentsFactory, actionsFactory, router, db, cfg.DefaultEntrypoint)
	defer tenants.StopAll(context.Background())

	// Start the federation tenant eagerly: inbound interswarm messages must
	// have somewhere to land even before any HTTP caller shows up.
	tenants.Get(fedNamespace)

	oracle := server.NewIdentityOracle(cfg.AuthEndpoint, cfg.TokenInfoEndpoint)
	srv := server.NewServer(cfg, tenants, reg, router, version)

	httpServer := &http.Server{
		Addr:    cfg.Bind,
		Handler: srv.Routes(oracle),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "maild %s listening on %s (swarm=%s)\n", version, cfg.Bind, cfg.SwarmName)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// defaultAgentsFactory builds the one default entrypoint agent for every
// freshly created tenant: an OpenAI-backed agent on MAIL_DEFAULT_MODEL,
// using the API key of the provider MAIL_DEFAULT_PROVIDER names. The
// provider setting selects only that key; the agent always talks to the
// default OpenAI endpoint. Host applications embedding internal/runtime directly supply
// their own richer agent rosters; this is the CLI's batteries-included
// default (agent definitions are explicitly a host concern per the Agent
// contract, not a MAIL specification detail).
func defaultAgentsFactory(cfg *server.Config) server.AgentsFactory {
	return func(namespace string) map[string]runtime.Agent {
		apiKey := providerAPIKey(cfg.DefaultProvider)
		catalog := toolcatalog.Catalog{Supervisor: true}
		a := agent.NewOpenAIAgent(apiKey, cfg.DefaultModel, "", defaultSystemPrompt, catalog)
		return map[string]runtime.Agent{
			cfg.DefaultEntrypoint: a,
		}
	}
}

const defaultSystemPrompt = "You are the entrypoint agent of a MAIL swarm. Use the messaging tools to collaborate and task_complete to finish."

func bootstrapFilePath(home string) string {
	return filepath.Join(home, "swarms.yaml")
}

func providerAPIKey(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}
