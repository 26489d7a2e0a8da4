// ABOUTME: Registry is the Swarm Registry: service discovery, token resolution, and health checks.
// ABOUTME: The local swarm is auto-registered and never volatile (spec.md §3, §4.R).
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/2389-research/mail/internal/interswarm"
)

var (
	// ErrSelfRegistration is returned when a caller tries to register an
	// endpoint under the local swarm's own name.
	ErrSelfRegistration = errors.New("registry: cannot register the local swarm as a remote endpoint")
	// ErrUnknownSwarm is returned by lookups against a name with no entry.
	ErrUnknownSwarm = errors.New("registry: unknown swarm")
)

var nameSanitizer = regexp.MustCompile(`[^A-Z0-9_]`)

// Endpoint is one remote (or the local) swarm's registration.
type Endpoint struct {
	Name         string
	BaseURL      string
	HealthURL    string
	AuthTokenRef string // "${ENV_NAME}" for persistent entries; empty for local/volatile-without-token
	rawToken     string // in-memory only, for volatile entries
	LastSeen     *time.Time
	IsActive     bool
	Metadata     map[string]any
	Volatile     bool
}

// Registry is the in-memory swarm directory plus its optional health-check loop.
type Registry struct {
	mu            sync.RWMutex
	localName     string
	localBaseURL  string
	endpoints     map[string]*Endpoint
	client        *http.Client
	healthCancel  context.CancelFunc
}

// New creates a Registry and auto-registers the local swarm under
// localName. The local entry is never volatile and carries no auth token.
func New(localName, localBaseURL string) *Registry {
	r := &Registry{
		localName:    localName,
		localBaseURL: localBaseURL,
		endpoints:    make(map[string]*Endpoint),
	}
	r.endpoints[localName] = &Endpoint{
		Name:      localName,
		BaseURL:   localBaseURL,
		HealthURL: strings.TrimRight(localBaseURL, "/") + "/health",
		IsActive:  true,
		Volatile:  false,
	}
	return r
}

// LocalSwarm returns the local swarm's name, satisfying runtime.Router.
func (r *Registry) LocalSwarm() string { return r.localName }

// RegisterSwarm adds or replaces an endpoint. Non-volatile registrations
// with a raw token get it rewritten to a generated `${SWARM_AUTH_TOKEN_<NAME>}`
// reference and the token is exported into the process environment;
// volatile registrations keep the raw token only in memory.
func (r *Registry) RegisterSwarm(name, baseURL, authToken string, metadata map[string]any, volatile bool) (*Endpoint, error) {
	if name == r.localName {
		return nil, ErrSelfRegistration
	}

	ep := &Endpoint{
		Name:      name,
		BaseURL:   baseURL,
		HealthURL: strings.TrimRight(baseURL, "/") + "/health",
		Metadata:  metadata,
		Volatile:  volatile,
		IsActive:  true,
	}

	if authToken != "" {
		if volatile {
			ep.rawToken = authToken
		} else {
			ref := envRefFor(name)
			_ = os.Setenv(strings.Trim(strings.TrimSuffix(strings.TrimPrefix(ref, "${"), "}"), ""), authToken)
			ep.AuthTokenRef = ref
		}
	}

	r.mu.Lock()
	r.endpoints[name] = ep
	r.mu.Unlock()
	return ep, nil
}

func envRefFor(name string) string {
	upper := nameSanitizer.ReplaceAllString(strings.ToUpper(name), "_")
	return fmt.Sprintf("${SWARM_AUTH_TOKEN_%s}", upper)
}

// GetResolvedAuthToken follows a `${ENV}` reference (or returns the raw
// in-memory token for a volatile entry) for name.
func (r *Registry) GetResolvedAuthToken(name string) (string, bool) {
	r.mu.RLock()
	ep, ok := r.endpoints[name]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}
	if ep.rawToken != "" {
		return ep.rawToken, true
	}
	if ep.AuthTokenRef == "" {
		return "", false
	}
	envName := strings.TrimSuffix(strings.TrimPrefix(ep.AuthTokenRef, "${"), "}")
	v := os.Getenv(envName)
	return v, v != ""
}

// Get returns the endpoint registered under name.
func (r *Registry) Get(name string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[name]
	return ep, ok
}

// List returns every registered endpoint, local swarm included.
func (r *Registry) List() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	return out
}

// CleanupVolatileEndpoints drops every volatile entry, for use at shutdown.
func (r *Registry) CleanupVolatileEndpoints() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, ep := range r.endpoints {
		if ep.Volatile {
			delete(r.endpoints, name)
		}
	}
}

// StartHealthChecks launches a background loop that GETs every remote
// endpoint's health URL every 30s with a 10s timeout, per spec.md §4.R.
func (r *Registry) StartHealthChecks(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.healthCancel = cancel
	r.mu.Unlock()

	client := r.httpClient()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.checkAll(ctx, client)
			}
		}
	}()
}

// StopHealthChecks cancels the background health-check loop, if running.
func (r *Registry) StopHealthChecks() {
	r.mu.Lock()
	cancel := r.healthCancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Registry) checkAll(ctx context.Context, client *http.Client) {
	for _, ep := range r.List() {
		if ep.Name == r.localName {
			continue
		}
		go r.checkOne(ctx, client, ep)
	}
}

func (r *Registry) checkOne(ctx context.Context, client *http.Client, ep *Endpoint) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, ep.HealthURL, nil)
	if err != nil {
		r.markInactive(ep.Name)
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		r.markInactive(ep.Name)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		r.markActive(ep.Name)
	} else {
		r.markInactive(ep.Name)
	}
}

func (r *Registry) markActive(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ep, ok := r.endpoints[name]; ok {
		now := time.Now().UTC()
		ep.IsActive = true
		ep.LastSeen = &now
	}
}

func (r *Registry) markInactive(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ep, ok := r.endpoints[name]; ok {
		ep.IsActive = false
	}
}

// DiscoverSwarms queries each URL's `/swarms` endpoint and registers any
// newly discovered remote entries (skipping the local swarm's own name).
func (r *Registry) DiscoverSwarms(ctx context.Context, urls []string) error {
	client := r.httpClient()
	var firstErr error
	for _, u := range urls {
		if err := r.discoverOne(ctx, client, u); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type discoveredEndpoint struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

func (r *Registry) discoverOne(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(url, "/")+"/swarms", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("registry: discover %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry: discover %s: status %d", url, resp.StatusCode)
	}

	var discovered []discoveredEndpoint
	if err := json.NewDecoder(resp.Body).Decode(&discovered); err != nil {
		return fmt.Errorf("registry: decode discovery response from %s: %w", url, err)
	}

	for _, d := range discovered {
		if d.Name == r.localName {
			continue
		}
		if _, ok := r.Get(d.Name); ok {
			continue
		}
		_, _ = r.RegisterSwarm(d.Name, d.BaseURL, "", nil, true)
	}
	return nil
}

func (r *Registry) httpClient() *http.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		r.client = &http.Client{Timeout: 10 * time.Second}
	}
	return r.client
}

// LookupEndpoint implements interswarm.SwarmLookup.
func (r *Registry) LookupEndpoint(name string) (interswarm.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[name]
	if !ok {
		return interswarm.Endpoint{}, false
	}
	return interswarm.Endpoint{Name: ep.Name, BaseURL: ep.BaseURL, IsActive: ep.IsActive}, true
}

// ActiveEndpoints implements interswarm.SwarmLookup.
func (r *Registry) ActiveEndpoints() []interswarm.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]interswarm.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, interswarm.Endpoint{Name: ep.Name, BaseURL: ep.BaseURL, IsActive: ep.IsActive})
	}
	return out
}

// ValidateEnvironmentVariables reports, for every persistent endpoint's
// auth_token_ref, whether the referenced environment variable is currently
// set. Used by `maild setup --check-env`.
func (r *Registry) ValidateEnvironmentVariables() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool)
	for _, ep := range r.endpoints {
		if ep.AuthTokenRef == "" {
			continue
		}
		envName := strings.TrimSuffix(strings.TrimPrefix(ep.AuthTokenRef, "${"), "}")
		out[envName] = os.Getenv(envName) != ""
	}
	return out
}
