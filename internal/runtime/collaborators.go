// ABOUTME: Interfaces the runtime core depends on but never implements itself.
// ABOUTME: Concrete implementations live in internal/agent, internal/action, internal/interswarm, internal/store.
package runtime

import (
	"context"

	"github.com/2389-research/mail/internal/message"
)

// Agent is the callable contract `(history, tool_choice) -> (text?, [ToolCall])`
// from spec.md §3. It is opaque to the runtime: the LLM call itself, and
// everything about how tool calls are produced, is the implementation's
// business.
type Agent interface {
	Turn(ctx context.Context, history *message.AgentHistory, toolChoice string) (text string, calls []message.ToolCall, err error)
}

// ActionExecutor invokes a named action function with a tool-call's
// arguments and returns its result as plain text, per spec.md §4.X. Action
// bodies themselves are opaque async callables returning strings.
type ActionExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// Router determines local vs. remote recipients for a message and fans
// remote copies out over HTTP, per spec.md §4.I.
type Router interface {
	// LocalSwarm returns the name of the swarm this runtime belongs to.
	LocalSwarm() string
	// Route delivers m to its remote recipients and returns the response
	// envelope to re-submit locally for accounting. A remote swarm that
	// cannot be reached, or answers with a non-OK status, yields a
	// synthesized system error response rather than an error; an error
	// means m could not be routed at all.
	Route(ctx context.Context, m message.MAILMessage) (message.MAILMessage, error)
}

// Store is the pluggable memory/KV interface certain MAIL tools use, most
// notably acknowledge_broadcast (spec.md §1, §4.C step 5). It is declared
// external to the runtime; internal/store ships one concrete default.
type Store interface {
	Remember(ctx context.Context, agentID string, m message.MAILMessage, note string) error
}
