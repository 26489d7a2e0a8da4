// ABOUTME: Interactive setup wizard for maild — collects API keys, writes .env, checks swarm env refs.
// ABOUTME: Follows the same subcommand pattern as mammoth's "setup", plus a --check-env mode for MAIL.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/2389-research/mail/internal/registry"
	"github.com/2389-research/mail/internal/server"
)

// setupConfig holds configuration for the "maild setup" subcommand.
type setupConfig struct {
	skipKeys bool
	envFile  string
	checkEnv bool
}

// parseSetupArgs checks whether args starts with the "setup" subcommand and,
// if so, parses setup-specific flags. Returns the config and true if "setup"
// was detected, or a zero value and false otherwise.
func parseSetupArgs(args []string) (setupConfig, bool) {
	if len(args) == 0 || args[0] != "setup" {
		return setupConfig{}, false
	}

	var cfg setupConfig
	fs := flag.NewFlagSet("maild setup", flag.ContinueOnError)
	fs.BoolVar(&cfg.skipKeys, "skip-keys", false, "Skip API key collection")
	fs.StringVar(&cfg.envFile, "env-file", ".env", "Path to write .env file")
	fs.BoolVar(&cfg.checkEnv, "check-env", false, "Report unresolved swarm auth token references and exit")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: maild setup [flags]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Interactive setup wizard — configure API keys and check swarm env references.")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	return cfg, true
}

// providerInfo holds the detection state for a single LLM provider.
type providerInfo struct {
	name   string
	envVar string
	prefix string
	isSet  bool
}

func detectProviders() []providerInfo {
	providers := []providerInfo{
		{name: "OpenAI", envVar: "OPENAI_API_KEY", prefix: "sk-"},
		{name: "Anthropic", envVar: "ANTHROPIC_API_KEY", prefix: "sk-ant-"},
		{name: "Gemini", envVar: "GEMINI_API_KEY", prefix: "AIza"},
	}
	for i := range providers {
		providers[i].isSet = os.Getenv(providers[i].envVar) != ""
	}
	return providers
}

func printProviderStatus(w io.Writer, providers []providerInfo) {
	fmt.Fprintln(w, "LLM Providers:")
	for _, p := range providers {
		check, status := "[ ]", "not set"
		if p.isSet {
			check, status = "[x]", "set"
		}
		fmt.Fprintf(w, "  %s %-10s (%s %s)\n", check, p.name, p.envVar, status)
	}
}

func validateKeyFormat(key, prefix string) bool {
	return key != "" && strings.HasPrefix(key, prefix)
}

func collectKeys(r io.Reader, w io.Writer, providers []providerInfo) map[string]string {
	scanner := bufio.NewScanner(r)
	collected := map[string]string{}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Enter API keys (leave blank to skip):")
	fmt.Fprintln(w)

	for _, p := range providers {
		if p.isSet {
			fmt.Fprintf(w, "  %s: already set\n", p.name)
			continue
		}

		fmt.Fprintf(w, "  %s (%s): ", p.name, p.envVar)
		if !scanner.Scan() {
			break
		}
		key := strings.TrimSpace(scanner.Text())
		if key == "" {
			continue
		}

		if !validateKeyFormat(key, p.prefix) {
			fmt.Fprintf(w, "  Warning: key doesn't match expected format (%s*). Save anyway? [Y/n] ", p.prefix)
			if !scanner.Scan() {
				break
			}
			answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
			if answer == "n" || answer == "no" {
				fmt.Fprintf(w, "  Skipped %s.\n", p.name)
				continue
			}
		}

		collected[p.envVar] = key
	}

	return collected
}

// writeEnvFile writes collected API keys to a .env file, updating matching
// keys in place and appending new ones. Does nothing if keys is empty.
func writeEnvFile(path string, keys map[string]string) error {
	if len(keys) == 0 {
		return nil
	}

	var existingLines []string
	if data, err := os.ReadFile(path); err == nil {
		existingLines = strings.Split(string(data), "\n")
	}

	written := map[string]bool{}
	var outputLines []string

	for _, line := range existingLines {
		trimmed := strings.TrimSpace(line)
		updated := false
		for envVar, value := range keys {
			lineKey := strings.TrimPrefix(trimmed, "export ")
			if k, _, ok := strings.Cut(lineKey, "="); ok && strings.TrimSpace(k) == envVar {
				outputLines = append(outputLines, envVar+"="+value)
				written[envVar] = true
				updated = true
				break
			}
		}
		if !updated {
			outputLines = append(outputLines, line)
		}
	}

	for envVar, value := range keys {
		if !written[envVar] {
			outputLines = append(outputLines, envVar+"="+value)
		}
	}

	for len(outputLines) > 0 && strings.TrimSpace(outputLines[len(outputLines)-1]) == "" {
		outputLines = outputLines[:len(outputLines)-1]
	}

	content := strings.Join(outputLines, "\n") + "\n"
	return os.WriteFile(path, []byte(content), 0600)
}

func printQuickStart(w io.Writer, configured []string) {
	fmt.Fprintln(w)
	if len(configured) > 0 {
		fmt.Fprintf(w, "Setup complete! You configured: %s\n", strings.Join(configured, ", "))
	} else {
		fmt.Fprintln(w, "No API keys configured.")
		fmt.Fprintln(w, "You can set them later in your .env file or environment.")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Quick start:")
	fmt.Fprintln(w, "  maild                  Start the server")
	fmt.Fprintln(w, "  maild setup --check-env   Verify swarm auth token references resolve")
	fmt.Fprintln(w)
}

// runSetup executes the interactive setup wizard using stdin/stdout, or the
// --check-env report mode.
func runSetup(cfg setupConfig) int {
	if cfg.checkEnv {
		return runCheckEnv(os.Stdout)
	}
	return runSetupWithIO(cfg, os.Stdin, os.Stdout)
}

// runCheckEnv loads the current swarm registry and reports any
// `${SWARM_AUTH_TOKEN_*}` reference that does not resolve in the current
// environment (spec.md §4.R's validate_environment_variables, exposed here
// as a CLI surface per SPEC_FULL.md §3).
func runCheckEnv(w io.Writer) int {
	serverCfg, err := server.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return 1
	}

	reg := registry.New(serverCfg.SwarmName, serverCfg.PublicBaseURL)
	registryPath := serverCfg.SwarmRegistryFile
	if err := reg.Load(registryPath); err != nil {
		fmt.Fprintf(w, "error: load registry: %v\n", err)
		return 1
	}

	unresolved := reg.ValidateEnvironmentVariables()
	if len(unresolved) == 0 {
		fmt.Fprintln(w, "No swarm auth token references configured.")
		return 0
	}

	failed := false
	for ref, ok := range unresolved {
		if ok {
			fmt.Fprintf(w, "  [x] %s resolves\n", ref)
			continue
		}
		fmt.Fprintf(w, "  [ ] %s does NOT resolve\n", ref)
		failed = true
	}

	if failed {
		return 1
	}
	return 0
}

// runSetupWithIO executes the setup wizard with injectable I/O for testing.
func runSetupWithIO(cfg setupConfig, r io.Reader, w io.Writer) int {
	fmt.Fprintln(w, "Welcome to maild setup!")
	fmt.Fprintln(w)

	providers := detectProviders()
	printProviderStatus(w, providers)

	var collected map[string]string
	if !cfg.skipKeys {
		collected = collectKeys(r, w, providers)

		if err := writeEnvFile(cfg.envFile, collected); err != nil {
			fmt.Fprintf(w, "Error writing %s: %v\n", cfg.envFile, err)
			return 1
		}

		if len(collected) > 0 {
			fmt.Fprintf(w, "\nWrote %d key(s) to %s\n", len(collected), cfg.envFile)
		}
	}

	var configured []string
	for _, p := range providers {
		if p.isSet {
			configured = append(configured, p.name)
			continue
		}
		if collected != nil {
			if _, ok := collected[p.envVar]; ok {
				configured = append(configured, p.name)
			}
		}
	}

	printQuickStart(w, configured)
	return 0
}
