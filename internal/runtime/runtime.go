// ABOUTME: Runtime is the per-tenant priority-queue dispatcher at the heart of MAIL (spec.md §4.C).
// ABOUTME: Owns the queue, pending futures, agent registry, per-agent histories, and event stream.
package runtime

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389-research/mail/internal/address"
	"github.com/2389-research/mail/internal/message"
)

// defaultWaitTimeout is submit_and_wait's default when the caller supplies
// no timeout, per spec.md §5 ("default 3600 s").
const defaultWaitTimeout = 3600 * time.Second

// heartbeatInterval bounds the silence submit_and_stream will tolerate
// before emitting a ping, per spec.md §4.C / §5.
const heartbeatInterval = 15 * time.Second

type pendingFuture struct {
	ch chan message.MAILMessage
}

// Runtime is one priority-scheduled dispatcher, created per (role, identity)
// tenant (spec.md §3 Lifecycle).
type Runtime struct {
	// TenantUserID is the local human user's address name for this tenant,
	// used to give unknown-recipient errors a pedagogical hint when the
	// offending recipient is actually the tenant user (spec.md §4.C step 2).
	TenantUserID string

	// entrypoint is the agent new tasks are addressed to absent an explicit
	// target. It is also the sender the runtime forces onto a synthesized
	// broadcast_complete (spec.md §4.C step 5), regardless of which agent
	// actually called task_complete.
	entrypoint string

	actions ActionExecutor
	router  Router // nil disables inter-swarm routing
	store   Store  // nil disables acknowledge_broadcast persistence

	qMu   sync.Mutex
	queue priorityQueue
	seq   uint64
	notify chan struct{}

	pendingMu sync.Mutex
	pending   map[uuid.UUID]*pendingFuture

	agentsMu sync.RWMutex
	agents   map[string]Agent

	historiesMu sync.Mutex
	histories   map[string]*message.AgentHistory

	events *EventBroadcaster

	activeWG     sync.WaitGroup
	activeMu     sync.Mutex
	activeCancel map[uint64]context.CancelFunc
	activeSeq    uint64

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	running atomic.Bool
}

// NewRuntime constructs a Runtime. router/store may be nil: inter-swarm
// routing and acknowledge_broadcast persistence are both optional,
// externally-declared collaborators (spec.md §1).
func NewRuntime(actions ActionExecutor, router Router, store Store) *Runtime {
	return &Runtime{
		actions:      actions,
		router:       router,
		store:        store,
		notify:       make(chan struct{}, 1),
		pending:      make(map[uuid.UUID]*pendingFuture),
		agents:       make(map[string]Agent),
		histories:    make(map[string]*message.AgentHistory),
		events:       NewEventBroadcaster(),
		activeCancel: make(map[uint64]context.CancelFunc),
		shutdownCh:   make(chan struct{}),
	}
}

// Events returns the runtime's event broadcaster, for HTTP handlers that
// need to subscribe to the full unfiltered stream (e.g. /status).
func (r *Runtime) Events() *EventBroadcaster { return r.events }

// SetEntrypoint records the swarm's entrypoint agent name. Safe to call once
// at construction time before RunContinuous/Run starts dispatching.
func (r *Runtime) SetEntrypoint(agentName string) { r.entrypoint = agentName }

// Entrypoint returns the configured entrypoint agent name, or "" if none was set.
func (r *Runtime) Entrypoint() string { return r.entrypoint }

// RegisterAgent adds agentName as a dispatch target. Overwrites any prior
// registration under the same name.
func (r *Runtime) RegisterAgent(agentName string, a Agent) {
	r.agentsMu.Lock()
	defer r.agentsMu.Unlock()
	r.agents[agentName] = a
}

// UnregisterAgent removes agentName from the dispatch target set.
func (r *Runtime) UnregisterAgent(agentName string) {
	r.agentsMu.Lock()
	defer r.agentsMu.Unlock()
	delete(r.agents, agentName)
}

func (r *Runtime) hasAgent(name string) bool {
	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()
	_, ok := r.agents[name]
	return ok
}

func (r *Runtime) agentByName(name string) Agent {
	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()
	return r.agents[name]
}

// LocalAgentNames returns every currently registered agent name.
func (r *Runtime) LocalAgentNames() []string {
	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

func (r *Runtime) historyFor(agentName string) *message.AgentHistory {
	r.historiesMu.Lock()
	defer r.historiesMu.Unlock()
	h, ok := r.histories[agentName]
	if !ok {
		h = message.NewAgentHistory(agentName)
		r.histories[agentName] = h
	}
	return h
}

// Submit enqueues m with its derived priority and a fresh monotonic
// sequence number. Never blocks beyond mutex contention; succeeds
// unconditionally (spec.md §4.C).
func (r *Runtime) Submit(m message.MAILMessage) error {
	r.qMu.Lock()
	r.seq++
	seq := r.seq
	heap.Push(&r.queue, &queuedMessage{priority: message.Priority(m.Kind), seq: seq, msg: m})
	r.qMu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}

	log.Printf("component=runtime.core action=submit kind=%s sender=%s subject=%q task_id=%s seq=%d",
		m.Kind, m.Sender(), m.Subject(), m.TaskID(), seq)
	return nil
}

func (r *Runtime) dequeue() (message.MAILMessage, bool) {
	r.qMu.Lock()
	defer r.qMu.Unlock()
	if r.queue.Len() == 0 {
		return message.MAILMessage{}, false
	}
	item := heap.Pop(&r.queue).(*queuedMessage)
	return item.msg, true
}

func (r *Runtime) registerPending(taskID uuid.UUID) (*pendingFuture, error) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if _, exists := r.pending[taskID]; exists {
		return nil, ErrDuplicateWait
	}
	f := &pendingFuture{ch: make(chan message.MAILMessage, 1)}
	r.pending[taskID] = f
	return f, nil
}

func (r *Runtime) removePending(taskID uuid.UUID) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	delete(r.pending, taskID)
}

// resolvePending resolves and removes the pending future for taskID, if
// one exists. Returns false if there was nothing waiting.
func (r *Runtime) resolvePending(taskID uuid.UUID, m message.MAILMessage) bool {
	r.pendingMu.Lock()
	f, ok := r.pending[taskID]
	if ok {
		delete(r.pending, taskID)
	}
	r.pendingMu.Unlock()
	if !ok {
		return false
	}
	select {
	case f.ch <- m:
	default:
	}
	return true
}

func (r *Runtime) hasPending(taskID uuid.UUID) bool {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	_, ok := r.pending[taskID]
	return ok
}

// SubmitAndWait submits m and blocks until its task_id's pending future
// resolves, times out, or ctx is cancelled. It is an error to call this
// concurrently for the same task_id as another outstanding
// SubmitAndWait/SubmitAndStream call (spec.md §4.C).
func (r *Runtime) SubmitAndWait(ctx context.Context, m message.MAILMessage, timeout time.Duration) (message.MAILMessage, error) {
	taskID := m.TaskID()
	future, err := r.registerPending(taskID)
	if err != nil {
		return message.MAILMessage{}, err
	}

	if err := r.Submit(m); err != nil {
		r.removePending(taskID)
		return message.MAILMessage{}, err
	}

	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}

	select {
	case resp := <-future.ch:
		r.events.Broadcast(Event{
			Kind: EventKindTaskComplete, Timestamp: time.Now().UTC(), TaskID: taskID,
			Description: "task complete", Extra: map[string]any{"body": resp.Text()},
		})
		return resp, nil
	case <-time.After(timeout):
		r.removePending(taskID)
		return message.MAILMessage{}, &Timeout{TaskID: taskID, Timeout: timeout.String()}
	case <-ctx.Done():
		r.removePending(taskID)
		return message.MAILMessage{}, ctx.Err()
	case <-r.shutdownCh:
		// Shutdown resolves every pending future with a System-Shutdown
		// broadcast_complete once outstanding dispatch work settles; wait
		// for that response rather than abandoning the future.
		select {
		case resp := <-future.ch:
			return resp, nil
		case <-time.After(timeout):
			r.removePending(taskID)
			return message.MAILMessage{}, ErrShuttingDown
		case <-ctx.Done():
			r.removePending(taskID)
			return message.MAILMessage{}, ctx.Err()
		}
	}
}

// SubmitAndStream submits m and returns a channel of Events scoped to its
// task_id. A ping is emitted whenever 15s pass with no matching event; the
// channel closes after the final task_complete (or on timeout/cancellation).
// The returned channel is single-consumer and must not be re-read after close.
func (r *Runtime) SubmitAndStream(ctx context.Context, m message.MAILMessage, timeout time.Duration) (<-chan Event, error) {
	taskID := m.TaskID()
	future, err := r.registerPending(taskID)
	if err != nil {
		return nil, err
	}

	sub := r.events.Subscribe()

	if err := r.Submit(m); err != nil {
		r.removePending(taskID)
		r.events.Unsubscribe(sub)
		return nil, err
	}

	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer r.events.Unsubscribe(sub)

		deadline := time.NewTimer(timeout)
		defer deadline.Stop()
		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if ev.TaskID == taskID {
					out <- ev
					heartbeat.Reset(heartbeatInterval)
				}
			case <-heartbeat.C:
				out <- Event{Kind: EventKindPing, Timestamp: time.Now().UTC(), TaskID: taskID}
			case resp := <-future.ch:
				out <- Event{
					Kind: EventKindTaskComplete, Timestamp: time.Now().UTC(), TaskID: taskID,
					Description: "task complete", Extra: map[string]any{"body": resp.Text()},
				}
				return
			case <-deadline.C:
				r.removePending(taskID)
				return
			case <-ctx.Done():
				r.removePending(taskID)
				return
			case <-r.shutdownCh:
				return
			}
		}
	}()

	return out, nil
}

// RunContinuous dequeues and dispatches until ctx is cancelled or Shutdown
// is called. Dispatch failures are logged and never stop the loop.
func (r *Runtime) RunContinuous(ctx context.Context) {
	r.loop(ctx, false)
}

// Run is the single-shot variant: it exits after the first
// broadcast_complete it dispatches. Re-entry is guarded by an is_running
// flag (spec.md §4.C).
func (r *Runtime) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)
	r.loop(ctx, true)
	return nil
}

func (r *Runtime) loop(ctx context.Context, singleShot bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdownCh:
			return
		default:
		}

		m, ok := r.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-r.shutdownCh:
				return
			case <-r.notify:
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		if m.Kind == message.KindBroadcastComplete {
			if r.resolvePending(m.TaskID(), m) {
				r.events.Broadcast(Event{
					Kind: EventKindTaskComplete, Timestamp: time.Now().UTC(), TaskID: m.TaskID(),
					Description: "task complete", Extra: map[string]any{"body": m.Text()},
				})
				if singleShot {
					return
				}
				continue
			}
		}

		r.dispatch(ctx, m)

		if singleShot && m.Kind == message.KindBroadcastComplete {
			return
		}
	}
}

// dispatch runs processMessage as a tracked, cancellable background task so
// Shutdown can await and then forcibly cancel outstanding work.
func (r *Runtime) dispatch(parent context.Context, m message.MAILMessage) {
	ctx, cancel := context.WithCancel(parent)

	r.activeMu.Lock()
	r.activeSeq++
	id := r.activeSeq
	r.activeCancel[id] = cancel
	r.activeMu.Unlock()

	r.activeWG.Add(1)
	go func() {
		defer r.activeWG.Done()
		defer func() {
			r.activeMu.Lock()
			delete(r.activeCancel, id)
			r.activeMu.Unlock()
			cancel()
		}()
		defer func() {
			if p := recover(); p != nil {
				log.Printf("component=runtime.core action=dispatch_panic task_id=%s recovered=%v", m.TaskID(), p)
			}
		}()
		r.processMessage(ctx, m)
	}()
}

// Shutdown sets the shutdown signal, awaits outstanding dispatch tasks up
// to 30s then cancels them with a 5s grace, and drains every pending future
// with a synthesized System-Shutdown broadcast_complete (spec.md §4.C, §5).
// It does not stop the inter-swarm router; whoever started the router
// stops it.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.shutdownOnce.Do(func() {
		close(r.shutdownCh)
	})

	done := make(chan struct{})
	go func() {
		r.activeWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		r.cancelAllActive()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}

	r.drainPendingOnShutdown()
}

func (r *Runtime) cancelAllActive() {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	for _, cancel := range r.activeCancel {
		cancel()
	}
}

func (r *Runtime) drainPendingOnShutdown() {
	r.pendingMu.Lock()
	remaining := make(map[uuid.UUID]*pendingFuture, len(r.pending))
	for k, v := range r.pending {
		remaining[k] = v
	}
	r.pending = make(map[uuid.UUID]*pendingFuture)
	r.pendingMu.Unlock()

	for taskID, f := range remaining {
		shutdown := message.NewBroadcastComplete(taskID, address.New(address.System, "system"), "System Shutdown")
		select {
		case f.ch <- shutdown:
		default:
		}
	}
}
