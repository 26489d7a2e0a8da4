// ABOUTME: Behavioral tests for Runtime: submit/wait, unknown-agent routing, broadcast-to-all, shutdown.
package runtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/2389-research/mail/internal/address"
	"github.com/2389-research/mail/internal/message"
	"github.com/2389-research/mail/internal/runtime"
)

// scriptedAgent answers with a single canned tool call the first time it's
// invoked, then falls silent, simulating the concrete Agent contract from
// spec.md §3 without an actual LLM call.
type scriptedAgent struct {
	mu    sync.Mutex
	calls []message.ToolCall
	text  string
	fired bool
}

func (a *scriptedAgent) Turn(_ context.Context, _ *message.AgentHistory, _ string) (string, []message.ToolCall, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fired {
		return "", nil, nil
	}
	a.fired = true
	return a.text, a.calls, nil
}

func (a *scriptedAgent) invocations() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fired
}

type noopActions struct{}

func (noopActions) Execute(context.Context, string, map[string]any) (string, error) { return "", nil }

func TestSubmitAndWait_TaskCompleteResolvesWaiter(t *testing.T) {
	rt := runtime.NewRuntime(noopActions{}, nil, nil)
	supervisor := &scriptedAgent{
		calls: []message.ToolCall{{Name: runtime.ToolTaskComplete, Args: map[string]any{"finish_message": "done"}, CallID: "c1"}},
	}
	rt.RegisterAgent("supervisor", supervisor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.RunContinuous(ctx)

	req, err := message.NewRequest(mustUUID(), address.New(address.User, "alice"), address.New(address.Agent, "supervisor"), "hi", "please help")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	resp, err := rt.SubmitAndWait(ctx, req, 2*time.Second)
	if err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if resp.Kind != message.KindBroadcastComplete {
		t.Errorf("Kind: got %q, want %q", resp.Kind, message.KindBroadcastComplete)
	}
	if resp.Text() != "done" {
		t.Errorf("Text: got %q, want %q", resp.Text(), "done")
	}
	if resp.TaskID() != req.TaskID() {
		t.Errorf("TaskID: got %v, want %v", resp.TaskID(), req.TaskID())
	}
}

func TestSubmitAndWait_TaskCompleteBySubAgentUsesEntrypointSender(t *testing.T) {
	rt := runtime.NewRuntime(noopActions{}, nil, nil)
	rt.SetEntrypoint("supervisor")

	analyst := &scriptedAgent{
		calls: []message.ToolCall{{Name: runtime.ToolTaskComplete, Args: map[string]any{"finish_message": "resolved"}, CallID: "c1"}},
	}
	rt.RegisterAgent("supervisor", &scriptedAgent{})
	rt.RegisterAgent("analyst", analyst)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.RunContinuous(ctx)

	req, err := message.NewRequest(mustUUID(), address.New(address.User, "alice"), address.New(address.Agent, "analyst"), "hi", "please help")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	resp, err := rt.SubmitAndWait(ctx, req, 2*time.Second)
	if err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if got := resp.Sender().Name(); got != "supervisor" {
		t.Errorf("Sender: got %q, want entrypoint %q even though analyst resolved the task", got, "supervisor")
	}
}

func TestSubmitAndWait_DuplicateTaskIDRejected(t *testing.T) {
	rt := runtime.NewRuntime(noopActions{}, nil, nil)
	rt.RegisterAgent("supervisor", &scriptedAgent{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	taskID := mustUUID()
	req, _ := message.NewRequest(taskID, address.New(address.User, "alice"), address.New(address.Agent, "supervisor"), "hi", "help")

	go func() { _, _ = rt.SubmitAndWait(ctx, req, 2*time.Second) }()
	time.Sleep(20 * time.Millisecond)

	second, _ := message.NewRequest(taskID, address.New(address.User, "alice"), address.New(address.Agent, "supervisor"), "hi again", "help")
	_, err := rt.SubmitAndWait(ctx, second, time.Second)
	if err != runtime.ErrDuplicateWait {
		t.Fatalf("expected ErrDuplicateWait, got %v", err)
	}
}

func TestDispatch_UnknownAgentDoesNotPanic(t *testing.T) {
	rt := runtime.NewRuntime(noopActions{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.RunContinuous(ctx)

	req, _ := message.NewRequest(mustUUID(), address.New(address.User, "alice"), address.New(address.Agent, "ghost"), "hi", "help")

	sub := rt.Events().Subscribe()
	defer rt.Events().Unsubscribe(sub)

	if err := rt.Submit(req); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The synthesized response is itself submitted (not directly observable
	// as an event here since nothing awaits it), so just confirm dispatch
	// doesn't panic or hang by giving the loop a moment to run.
	time.Sleep(50 * time.Millisecond)
}

func TestDispatch_BroadcastToAllSkipsSender(t *testing.T) {
	rt := runtime.NewRuntime(noopActions{}, nil, nil)

	analyst := &scriptedAgent{}
	mathAgent := &scriptedAgent{}
	supervisor := &scriptedAgent{}
	rt.RegisterAgent("supervisor", supervisor)
	rt.RegisterAgent("analyst", analyst)
	rt.RegisterAgent("math", mathAgent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.RunContinuous(ctx)

	broadcast, err := message.NewBroadcast(mustUUID(), address.New(address.Agent, "supervisor"),
		[]address.Address{address.New(address.Agent, address.All)}, "fyi", "update")
	if err != nil {
		t.Fatalf("NewBroadcast: %v", err)
	}

	if err := rt.Submit(broadcast); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if analyst.invocations() && mathAgent.invocations() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !analyst.invocations() {
		t.Error("expected analyst to be dispatched for broadcast to all")
	}
	if !mathAgent.invocations() {
		t.Error("expected math to be dispatched for broadcast to all")
	}
	if supervisor.invocations() {
		t.Error("sender should not be re-invoked by its own broadcast to all")
	}
}

func TestShutdown_DrainsPendingWithSystemShutdown(t *testing.T) {
	rt := runtime.NewRuntime(noopActions{}, nil, nil)
	rt.RegisterAgent("supervisor", &scriptedAgent{}) // never calls task_complete

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.RunContinuous(ctx)

	req, _ := message.NewRequest(mustUUID(), address.New(address.User, "alice"), address.New(address.Agent, "supervisor"), "hi", "help")

	waitDone := make(chan message.MAILMessage, 1)
	waitErr := make(chan error, 1)
	go func() {
		resp, err := rt.SubmitAndWait(context.Background(), req, 10*time.Second)
		waitDone <- resp
		waitErr <- err
	}()
	time.Sleep(30 * time.Millisecond)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	rt.Shutdown(shutdownCtx)

	select {
	case resp := <-waitDone:
		if err := <-waitErr; err != nil {
			t.Fatalf("SubmitAndWait after shutdown: %v", err)
		}
		if resp.Text() != "System Shutdown" {
			t.Errorf("Text: got %q, want %q", resp.Text(), "System Shutdown")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for shutdown to drain the pending future")
	}
}

func mustUUID() uuid.UUID { return uuid.New() }
