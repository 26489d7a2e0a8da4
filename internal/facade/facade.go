// ABOUTME: Facade is the user-facing submit/await/stream API wrapping a Runtime.
// ABOUTME: Builds envelopes from entrypoint/message/target and validates request shape.
package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389-research/mail/internal/address"
	"github.com/2389-research/mail/internal/message"
	"github.com/2389-research/mail/internal/runtime"
)

// defaultTimeout bounds a post_message call absent an explicit one.
const defaultTimeout = 5 * time.Minute

// Facade wraps a Runtime with the request/response/stream surface the HTTP
// layer calls, per spec.md §4.S.
type Facade struct {
	rt        *runtime.Runtime
	userAddr  address.Address
	entrypoint string
}

// New builds a Facade over rt for a single tenant user, addressing
// submitted requests to defaultEntrypoint when none is given explicitly.
func New(rt *runtime.Runtime, userID string, defaultEntrypoint string) *Facade {
	return &Facade{
		rt:         rt,
		userAddr:   address.New(address.User, userID),
		entrypoint: defaultEntrypoint,
	}
}

// PostMessage builds a Request envelope addressed to entrypoint (or the
// facade's default) and blocks until the task resolves or timeout elapses.
// Per spec.md §4.S, a request-type envelope must have exactly one target.
func (f *Facade) PostMessage(ctx context.Context, text, entrypoint string, timeout time.Duration) (message.MAILMessage, error) {
	target := entrypoint
	if target == "" {
		target = f.entrypoint
	}
	if target == "" {
		return message.MAILMessage{}, fmt.Errorf("facade: no entrypoint agent specified and no default configured")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	req, err := message.NewRequest(uuid.New(), f.userAddr, address.New(address.Agent, target), "User Message", text)
	if err != nil {
		return message.MAILMessage{}, fmt.Errorf("facade: build request: %w", err)
	}

	return f.rt.SubmitAndWait(ctx, req, timeout)
}

// PostMessageStream is the streaming counterpart of PostMessage: it returns
// the runtime's live event channel for this task rather than blocking for a
// single terminal value.
func (f *Facade) PostMessageStream(ctx context.Context, text, entrypoint string, timeout time.Duration) (<-chan runtime.Event, error) {
	target := entrypoint
	if target == "" {
		target = f.entrypoint
	}
	if target == "" {
		return nil, fmt.Errorf("facade: no entrypoint agent specified and no default configured")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	req, err := message.NewRequest(uuid.New(), f.userAddr, address.New(address.Agent, target), "User Message", text)
	if err != nil {
		return nil, fmt.Errorf("facade: build request: %w", err)
	}

	return f.rt.SubmitAndStream(ctx, req, timeout)
}

// Shutdown tears down the underlying runtime, per spec.md §4.C.
func (f *Facade) Shutdown(ctx context.Context) {
	f.rt.Shutdown(ctx)
}

// Run drives the underlying runtime's continuous dispatch loop until ctx is
// cancelled or Shutdown is called.
func (f *Facade) Run(ctx context.Context) {
	f.rt.RunContinuous(ctx)
}

// Events exposes the underlying runtime's event broadcaster, e.g. for a
// `/status` endpoint's recent-activity view.
func (f *Facade) Events() *runtime.EventBroadcaster {
	return f.rt.Events()
}
