// ABOUTME: TenantManager lazily creates one Runtime/Facade pair per (role, id) principal.
// ABOUTME: Mirrors the teacher's AppState check-and-set-under-lock pattern for per-spec actors.
package server

import (
	"context"
	"log"
	"sync"

	"github.com/2389-research/mail/internal/facade"
	"github.com/2389-research/mail/internal/interswarm"
	"github.com/2389-research/mail/internal/message"
	"github.com/2389-research/mail/internal/runtime"
	"github.com/2389-research/mail/internal/store"
)

// AgentsFactory builds the named agents a freshly created tenant runtime
// should register, keyed by agent name. The host owns agent configuration;
// MAIL only owns when a tenant's runtime comes into existence.
type AgentsFactory func(namespace string) map[string]runtime.Agent

// ActionsFactory builds the action executor a freshly created tenant
// runtime should use.
type ActionsFactory func(namespace string) runtime.ActionExecutor

// Tenant bundles one principal's Runtime and Facade with its lifecycle.
type Tenant struct {
	Runtime *runtime.Runtime
	Facade  *facade.Facade
	cancel  context.CancelFunc
}

// TenantManager lazily creates a Runtime per (role, id) principal on first
// use, per spec.md §3's "Lifecycle" clause, and tears all of them down on
// server shutdown.
type TenantManager struct {
	mu       sync.RWMutex
	tenants  map[string]*Tenant
	agents   AgentsFactory
	actions  ActionsFactory
	router   *interswarm.Router
	store    *store.SQLiteStore
	entrypoint string
}

// NewTenantManager builds a manager. router and st may be nil (no
// federation / no persisted memory, respectively).
func NewTenantManager(agents AgentsFactory, actions ActionsFactory, router *interswarm.Router, st *store.SQLiteStore, defaultEntrypoint string) *TenantManager {
	return &TenantManager{
		tenants:    make(map[string]*Tenant),
		agents:     agents,
		actions:    actions,
		router:     router,
		store:      st,
		entrypoint: defaultEntrypoint,
	}
}

// Get returns the tenant for namespace, creating and starting it on first
// use. The check-and-set happens under one lock to prevent duplicate
// runtimes racing on concurrent first requests.
func (tm *TenantManager) Get(namespace string) *Tenant {
	tm.mu.RLock()
	t, ok := tm.tenants[namespace]
	tm.mu.RUnlock()
	if ok {
		return t
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	if t, ok := tm.tenants[namespace]; ok {
		return t
	}

	var actions runtime.ActionExecutor
	if tm.actions != nil {
		actions = tm.actions(namespace)
	}

	// Pass a genuinely nil interface when no router is configured — a
	// typed nil *interswarm.Router boxed into runtime.Router would compare
	// non-nil and panic on first use.
	var routerIface runtime.Router
	if tm.router != nil {
		routerIface = tm.router
	}
	rt := runtime.NewRuntime(actions, routerIface, storeAdapter{tm.store})
	rt.SetEntrypoint(tm.entrypoint)

	if tm.agents != nil {
		for name, a := range tm.agents(namespace) {
			rt.RegisterAgent(name, a)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t = &Tenant{
		Runtime: rt,
		Facade:  facade.New(rt, namespace, tm.entrypoint),
		cancel:  cancel,
	}
	tm.tenants[namespace] = t

	go rt.RunContinuous(ctx)
	log.Printf("component=mail.server action=tenant_started namespace=%s", namespace)

	return t
}

// Stop tears down one tenant's runtime, if present.
func (tm *TenantManager) Stop(namespace string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	t, ok := tm.tenants[namespace]
	if !ok {
		return false
	}
	t.Facade.Shutdown(context.Background())
	t.cancel()
	delete(tm.tenants, namespace)
	return true
}

// StopAll tears down every tenant's runtime, for server shutdown.
func (tm *TenantManager) StopAll(ctx context.Context) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for namespace, t := range tm.tenants {
		t.Facade.Shutdown(ctx)
		t.cancel()
		delete(tm.tenants, namespace)
	}
}

// Namespaces lists every tenant currently running.
func (tm *TenantManager) Namespaces() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make([]string, 0, len(tm.tenants))
	for ns := range tm.tenants {
		out = append(out, ns)
	}
	return out
}

// storeAdapter narrows *store.SQLiteStore to runtime.Store, tolerating a
// nil store by no-op'ing Remember (memory persistence is optional per
// spec.md §1: "the pluggable memory/store used by certain tools is
// likewise external").
type storeAdapter struct{ s *store.SQLiteStore }

func (a storeAdapter) Remember(ctx context.Context, agentID string, m message.MAILMessage, note string) error {
	if a.s == nil {
		return nil
	}
	return a.s.Remember(ctx, agentID, m, note)
}
