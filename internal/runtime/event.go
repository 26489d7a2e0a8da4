// ABOUTME: Event is the runtime's telemetry envelope; EventBroadcaster fans events out to subscribers.
// ABOUTME: Grounded on the teacher's actor.go broadcaster: buffered per-subscriber channels, drop-if-full.
package runtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Event is a single piece of runtime telemetry, per spec.md §3: `{kind, ts,
// task_id, description, extra?}`. ID is a supplement beyond the base data
// model: a monotonic, lexically sortable identifier so history consumers
// can resume a feed by ID rather than by array index.
type Event struct {
	ID          ulid.ULID      `json:"id"`
	Kind        string         `json:"kind"`
	Timestamp   time.Time      `json:"ts"`
	TaskID      uuid.UUID      `json:"task_id"`
	Description string         `json:"description"`
	Extra       map[string]any `json:"extra,omitempty"`
}

const (
	EventKindTaskComplete = "task_complete"
	EventKindPing         = "ping"
	EventKindDispatch     = "dispatch"
	EventKindRouted       = "routed"
	EventKindError        = "error"
)

// EventBroadcaster fans a sequence of Events out to any number of
// subscribers. Each subscriber owns a buffered channel; a slow or stalled
// subscriber has events dropped rather than blocking the broadcaster, the
// same trade-off the teacher's actor.go EventBroadcaster makes.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers []chan Event

	history   []Event
	histMu    sync.Mutex
	available chan struct{} // single-flag notifier, set on each append
}

// NewEventBroadcaster creates a broadcaster with no initial subscribers.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{available: make(chan struct{}, 1)}
}

// Subscribe creates a new buffered channel for receiving broadcast events.
func (b *EventBroadcaster) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 256)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (b *EventBroadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// Broadcast records the event in history and fans it out to all current
// subscribers, dropping it for any subscriber whose buffer is full.
func (b *EventBroadcaster) Broadcast(event Event) {
	if (event.ID == ulid.ULID{}) {
		event.ID = NewULID()
	}

	b.histMu.Lock()
	b.history = append(b.history, event)
	b.histMu.Unlock()

	select {
	case b.available <- struct{}{}:
	default:
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// History returns a snapshot of every event broadcast so far.
func (b *EventBroadcaster) History() []Event {
	b.histMu.Lock()
	defer b.histMu.Unlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// Available returns the single-flag notifier channel that is set (a value
// ready to receive) whenever a new event has been appended since it was
// last drained.
func (b *EventBroadcaster) Available() <-chan struct{} {
	return b.available
}
