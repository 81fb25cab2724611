package domain

import (
	"errors"
	"testing"
)

func TestCommandErrorMessage(t *testing.T) {
	t.Parallel()

	err := &CommandError{Command: "spawn_actor", Err: errors.New("boom")}
	want := "command spawn_actor: boom"
	if got := err.Error(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	t.Parallel()

	err := &CommandError{Command: "compile_blueprint", Err: ErrTimeout}
	if !errors.Is(err, ErrTimeout) {
		t.Fatal("expected errors.Is to match ErrTimeout")
	}
}

func TestCommandErrorWithoutName(t *testing.T) {
	t.Parallel()

	err := &CommandError{Err: errors.New("oops")}
	if got := err.Error(); got != "oops" {
		t.Fatalf("got %q, want %q", got, "oops")
	}
}

func TestSentinelErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", ErrTimeout, "command timed out"},
		{"unauthorized", ErrUnauthorized, "authentication required"},
		{"rate_limited", ErrRateLimited, "too many attempts"},
		{"unknown_command", ErrUnknownCommand, "unknown command"},
		{"queue_full", ErrQueueFull, "executor queue full"},
		{"not_configured", ErrNotConfigured, "instance manager not configured"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.err.Error(); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
