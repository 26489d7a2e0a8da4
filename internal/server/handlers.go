// ABOUTME: Handler implementations for every endpoint in spec.md §6's table.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/2389-research/mail/internal/interswarm"
	"github.com/2389-research/mail/internal/message"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "mail",
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"swarm_name": s.cfg.SwarmName,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())
	namespace := principal.Namespace()

	body := map[string]any{
		"swarm_name": s.cfg.SwarmName,
		"role":       principal.Role,
		"id":         principal.ID,
		"namespace":  namespace,
		"tenants":    s.tenants.Namespaces(),
	}
	writeJSON(w, http.StatusOK, body)
}

type messageRequest struct {
	Message    string `json:"message"`
	Entrypoint string `json:"entrypoint,omitempty"`
	ShowEvents bool   `json:"show_events,omitempty"`
	Stream     bool   `json:"stream,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFrom(r.Context())

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	tenant := s.tenants.Get(principal.Namespace())

	if req.Stream {
		s.streamMessage(w, r, tenant, req)
		return
	}

	resp, err := tenant.Facade.PostMessage(r.Context(), req.Message, req.Entrypoint, 0)
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	out := map[string]any{"response": resp.Text()}
	if req.ShowEvents {
		out["events"] = tenant.Runtime.Events().History()
	}
	writeJSON(w, http.StatusOK, out)
}

type swarmSummary struct {
	Name     string `json:"name"`
	BaseURL  string `json:"base_url"`
	IsActive bool   `json:"is_active"`
}

func (s *Server) handleSwarmsList(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeJSON(w, http.StatusOK, []swarmSummary{})
		return
	}
	out := make([]swarmSummary, 0, len(s.registry.List()))
	for _, ep := range s.registry.List() {
		out = append(out, swarmSummary{Name: ep.Name, BaseURL: ep.BaseURL, IsActive: ep.IsActive})
	}
	writeJSON(w, http.StatusOK, out)
}

type registerSwarmRequest struct {
	Name      string         `json:"name"`
	BaseURL   string         `json:"base_url"`
	AuthToken string         `json:"auth_token,omitempty"`
	Volatile  bool           `json:"volatile,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleSwarmsRegister(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "interswarm federation is not enabled on this node")
		return
	}

	var req registerSwarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ep, err := s.registry.RegisterSwarm(req.Name, req.BaseURL, req.AuthToken, req.Metadata, req.Volatile)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Volatile {
		_ = s.registry.Save(s.cfg.SwarmRegistryFile)
	}

	writeJSON(w, http.StatusOK, swarmSummary{Name: ep.Name, BaseURL: ep.BaseURL, IsActive: ep.IsActive})
}

func (s *Server) handleSwarmsDump(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeJSON(w, http.StatusOK, []swarmSummary{})
		return
	}
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleSwarmsLoad(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "interswarm federation is not enabled on this node")
		return
	}

	tmp, err := saveUploadToTemp(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer removeTemp(tmp)

	if err := s.registry.Load(tmp); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

func (s *Server) handleInterswarmMessage(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		writeError(w, http.StatusServiceUnavailable, "interswarm federation is not enabled on this node")
		return
	}

	var wrapper interswarm.MAILInterswarmMessage
	if err := json.NewDecoder(r.Body).Decode(&wrapper); err != nil {
		writeError(w, http.StatusBadRequest, "malformed interswarm wrapper")
		return
	}

	result, err := s.router.HandleIncoming(wrapper)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleInterswarmResponse(w http.ResponseWriter, r *http.Request) {
	var m message.MAILMessage
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "malformed message")
		return
	}

	principal, _ := PrincipalFrom(r.Context())
	tenant := s.tenants.Get(principal.Namespace())
	if err := tenant.Runtime.Submit(m); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type interswarmSendRequest struct {
	TargetAgent string `json:"target_agent"`
	Message     string `json:"message"`
	UserToken   string `json:"user_token"`
}

func (s *Server) handleInterswarmSend(w http.ResponseWriter, r *http.Request) {
	var req interswarmSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.TargetAgent == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "target_agent and message are required")
		return
	}

	principal, _ := PrincipalFrom(r.Context())
	tenant := s.tenants.Get(principal.Namespace())

	resp, err := tenant.Facade.PostMessage(r.Context(), req.Message, req.TargetAgent, 0)
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": resp.Text(), "sender": resp.Sender()})
}

// saveUploadToTemp copies an uploaded registry dump to a temp file so
// Registry.Load (which takes a path) can consume it.
func saveUploadToTemp(r io.Reader) (string, error) {
	f, err := os.CreateTemp("", "mail-registry-upload-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func removeTemp(path string) {
	_ = os.Remove(path)
}
