// ABOUTME: Builds the chi router wiring every endpoint from spec.md §6's table.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389-research/mail/internal/interswarm"
	"github.com/2389-research/mail/internal/registry"
)

// Server bundles the pieces an HTTP handler needs to serve a MAIL node.
type Server struct {
	cfg      *Config
	tenants  *TenantManager
	registry *registry.Registry
	router   *interswarm.Router
	version  string
}

// NewServer builds a Server ready to have its router mounted.
func NewServer(cfg *Config, tenants *TenantManager, reg *registry.Registry, router *interswarm.Router, version string) *Server {
	return &Server{cfg: cfg, tenants: tenants, registry: reg, router: router, version: version}
}

// Routes builds the chi.Router exposing every endpoint in spec.md §6.
func (s *Server) Routes(oracle *IdentityOracle) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(oracle, s.cfg.AuthToken))

		r.Get("/status", s.handleStatus)
		r.Post("/message", s.handleMessage)

		r.Get("/swarms", s.handleSwarmsList)
		r.With(RequireRole(RoleAdmin)).Post("/swarms/register", s.handleSwarmsRegister)
		r.With(RequireRole(RoleAdmin)).Get("/swarms/dump", s.handleSwarmsDump)
		r.With(RequireRole(RoleAdmin)).Post("/swarms/load", s.handleSwarmsLoad)

		r.With(RequireRole(RoleAgent)).Post("/interswarm/message", s.handleInterswarmMessage)
		r.With(RequireRole(RoleAgent)).Post("/interswarm/response", s.handleInterswarmResponse)
		r.With(RequireRole(RoleUser, RoleAdmin)).Post("/interswarm/send", s.handleInterswarmSend)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
