// ABOUTME: JSON persistence for the Swarm Registry's non-volatile endpoints.
// ABOUTME: Only entries with Volatile=false are written; volatile entries never touch disk.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// persistedFile is the on-disk shape of the registry file (spec.md §6).
type persistedFile struct {
	LocalSwarmName string                      `json:"local_swarm_name"`
	LocalBaseURL   string                      `json:"local_base_url"`
	Endpoints      map[string]*persistedEntry `json:"endpoints"`
}

type persistedEntry struct {
	SwarmName     string         `json:"swarm_name"`
	BaseURL       string         `json:"base_url"`
	HealthCheckURL string        `json:"health_check_url"`
	AuthTokenRef  string         `json:"auth_token_ref,omitempty"`
	LastSeen      *string        `json:"last_seen,omitempty"`
	IsActive      bool           `json:"is_active"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Volatile      bool           `json:"volatile"`
}

// Save writes every non-volatile endpoint (plus the local swarm identity) to path.
func (r *Registry) Save(path string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := persistedFile{
		LocalSwarmName: r.localName,
		LocalBaseURL:   r.localBaseURL,
		Endpoints:      make(map[string]*persistedEntry),
	}

	for name, ep := range r.endpoints {
		if ep.Volatile || name == r.localName {
			continue
		}
		var lastSeen *string
		if ep.LastSeen != nil {
			s := ep.LastSeen.UTC().Format("2006-01-02T15:04:05Z07:00")
			lastSeen = &s
		}
		out.Endpoints[name] = &persistedEntry{
			SwarmName:      ep.Name,
			BaseURL:        ep.BaseURL,
			HealthCheckURL: ep.HealthURL,
			AuthTokenRef:   ep.AuthTokenRef,
			LastSeen:       lastSeen,
			IsActive:       ep.IsActive,
			Metadata:       ep.Metadata,
			Volatile:       false,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal persistence file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("registry: write persistence file: %w", err)
	}
	return nil
}

// Load reads path and merges every persisted endpoint into the registry.
// Missing files are not an error (first-run case).
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("registry: read persistence file: %w", err)
	}

	var in persistedFile
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("registry: parse persistence file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, ep := range in.Endpoints {
		if name == r.localName {
			continue
		}
		r.endpoints[name] = &Endpoint{
			Name:         ep.SwarmName,
			BaseURL:      ep.BaseURL,
			HealthURL:    ep.HealthCheckURL,
			AuthTokenRef: ep.AuthTokenRef,
			IsActive:     ep.IsActive,
			Metadata:     ep.Metadata,
			Volatile:     false,
		}
	}
	return nil
}
