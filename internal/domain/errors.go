package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrTimeout indicates queued work did not complete within its budget.
	// The work itself is not cancelled; its outcome is unknown.
	ErrTimeout = errors.New("command timed out")

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("authentication required")

	// ErrRateLimited is returned when a client exceeds the allowed
	// PIN attempt rate.
	ErrRateLimited = errors.New("too many attempts")

	// ErrUnknownCommand means no handler is registered for the command name.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrQueueFull means the executor queue is saturated and cannot accept
	// more work right now.
	ErrQueueFull = errors.New("executor queue full")

	// ErrNotConfigured means the instance manager has not run AutoConfigure.
	ErrNotConfigured = errors.New("instance manager not configured")
)

// CommandError wraps a failure raised while executing a command handler,
// carrying diagnostic detail for the wire-level "traceback" field.
type CommandError struct {
	Command   string
	Err       error
	Traceback string
}

func (e *CommandError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("command %s: %v", e.Command, e.Err)
	}
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
