// ABOUTME: Tests for envelope construction, default-entrypoint fallback, and missing-target errors.
package facade_test

import (
	"context"
	"testing"
	"time"

	"github.com/2389-research/mail/internal/address"
	"github.com/2389-research/mail/internal/facade"
	"github.com/2389-research/mail/internal/message"
	"github.com/2389-research/mail/internal/runtime"
)

type stubAgent struct{ done bool }

func (a *stubAgent) Turn(_ context.Context, _ *message.AgentHistory, _ string) (string, []message.ToolCall, error) {
	if a.done {
		return "", nil, nil
	}
	a.done = true
	return "", []message.ToolCall{{Name: runtime.ToolTaskComplete, Args: map[string]any{"finish_message": "ok"}, CallID: "c1"}}, nil
}

type noopActions struct{}

func (noopActions) Execute(context.Context, string, map[string]any) (string, error) { return "", nil }

func TestPostMessage_UsesDefaultEntrypoint(t *testing.T) {
	rt := runtime.NewRuntime(noopActions{}, nil, nil)
	rt.RegisterAgent("supervisor", &stubAgent{})
	f := facade.New(rt, "alice", "supervisor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	resp, err := f.PostMessage(ctx, "hello", "", 2*time.Second)
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if resp.Text() != "ok" {
		t.Errorf("Text: got %q, want %q", resp.Text(), "ok")
	}
}

func TestPostMessage_NoEntrypointIsAnError(t *testing.T) {
	rt := runtime.NewRuntime(noopActions{}, nil, nil)
	f := facade.New(rt, "alice", "")

	if _, err := f.PostMessage(context.Background(), "hello", "", time.Second); err == nil {
		t.Fatal("expected an error when no entrypoint is configured or provided")
	}
}

func TestPostMessage_ExplicitEntrypointOverridesDefault(t *testing.T) {
	rt := runtime.NewRuntime(noopActions{}, nil, nil)
	rt.RegisterAgent("researcher", &stubAgent{})
	f := facade.New(rt, "alice", "supervisor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	resp, err := f.PostMessage(ctx, "hello", "researcher", 2*time.Second)
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if resp.Sender() != address.New(address.Agent, "researcher") {
		t.Errorf("expected the response to originate from the explicit entrypoint, got %+v", resp.Sender())
	}
}
