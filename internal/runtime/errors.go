// ABOUTME: Sentinel errors and typed failures surfaced by the runtime's public operations.
package runtime

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrShuttingDown indicates the runtime is tearing down and will not
	// accept further dispatch work.
	ErrShuttingDown = errors.New("runtime is shutting down")

	// ErrDuplicateWait indicates submit_and_wait or submit_and_stream was
	// called twice for the same task_id while the first call is still
	// outstanding (spec.md §3 invariant 3: at most one pending future per task).
	ErrDuplicateWait = errors.New("a pending future already exists for this task_id")

	// ErrAlreadyRunning indicates run() was called while a previous run()
	// or run_continuous() call on the same runtime is still active.
	ErrAlreadyRunning = errors.New("runtime is already running")

	// ErrNoRecipients indicates a request/broadcast/interrupt was submitted
	// with no resolvable recipients at all (not even "unknown agent" routing
	// applies, e.g. an empty recipients slice reached dispatch).
	ErrNoRecipients = errors.New("message has no recipients")
)

// Timeout is returned by submit_and_wait when its deadline elapses before
// the task's pending future resolves.
type Timeout struct {
	TaskID  uuid.UUID
	Timeout string
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("submit_and_wait timed out after %s waiting for task %s", e.Timeout, e.TaskID)
}

// UnknownSwarmError indicates a message was routed toward a swarm name the
// registry has no endpoint for.
type UnknownSwarmError struct {
	Swarm string
}

func (e *UnknownSwarmError) Error() string {
	return fmt.Sprintf("unknown swarm: %q", e.Swarm)
}
