// ABOUTME: Executor invokes host action-tool bodies by name, satisfying runtime.ActionExecutor.
// ABOUTME: An optional override intercepts every call before the registry is consulted.
package action

import (
	"context"
	"fmt"
)

// Func is an action tool body: an opaque callable that takes the tool
// call's arguments and returns its result as plain text (spec.md §4.X).
type Func func(ctx context.Context, args map[string]any) (string, error)

// Override, if set, is consulted before the named-function registry for
// every action invocation. It mirrors the teacher's "try a hook first,
// fall back to the registered handler" shape used for overridable tool
// dispatch.
type Override func(ctx context.Context, name string, args map[string]any) (string, bool, error)

// Executor is the default ActionExecutor: a registry of named Funcs plus an
// optional Override.
type Executor struct {
	actions  map[string]Func
	override Override
}

// NewExecutor builds an empty Executor. Register action bodies with Register.
func NewExecutor() *Executor {
	return &Executor{actions: make(map[string]Func)}
}

// Register adds or replaces the Func bound to name.
func (e *Executor) Register(name string, fn Func) {
	e.actions[name] = fn
}

// SetOverride installs or clears the override hook.
func (e *Executor) SetOverride(override Override) {
	e.override = override
}

// Execute implements runtime.ActionExecutor: consult the override first (if
// set and it claims the call); otherwise resolve the named Func and invoke
// it. Per spec.md §4.X, an unresolved name is itself an error, not a no-op.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	if e.override != nil {
		if result, handled, err := e.override(ctx, name, args); handled {
			return result, err
		}
	}

	fn, ok := e.actions[name]
	if !ok {
		return "", fmt.Errorf("action: no action registered for tool %q", name)
	}
	return fn(ctx, args)
}
