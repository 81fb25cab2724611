package instance

import (
	"testing"
	"time"
)

func TestAttemptWindowLocksOutAfterMax(t *testing.T) {
	t.Parallel()

	w := newAttemptWindow(3, time.Minute)
	for i := 0; i < 3; i++ {
		ok, _ := w.check("10.0.0.1")
		if !ok {
			t.Fatalf("attempt %d unexpectedly blocked", i)
		}
		w.record("10.0.0.1")
	}

	ok, wait := w.check("10.0.0.1")
	if ok {
		t.Fatal("expected lockout after max attempts")
	}
	if wait <= 0 || wait > time.Minute {
		t.Fatalf("unexpected lockout remainder %s", wait)
	}
}

func TestAttemptWindowIsPerIP(t *testing.T) {
	t.Parallel()

	w := newAttemptWindow(1, time.Minute)
	w.record("10.0.0.1")
	if ok, _ := w.check("10.0.0.1"); ok {
		t.Fatal("expected first IP locked")
	}
	if ok, _ := w.check("10.0.0.2"); !ok {
		t.Fatal("expected second IP unaffected")
	}
}

func TestAttemptWindowExpires(t *testing.T) {
	t.Parallel()

	now := time.Now()
	w := newAttemptWindow(2, 5*time.Minute)
	w.now = func() time.Time { return now }

	w.record("10.0.0.1")
	w.record("10.0.0.1")
	if ok, _ := w.check("10.0.0.1"); ok {
		t.Fatal("expected lockout")
	}

	now = now.Add(5*time.Minute + time.Second)
	if ok, _ := w.check("10.0.0.1"); !ok {
		t.Fatal("expected attempts to age out")
	}
	if left := w.left("10.0.0.1"); left != 2 {
		t.Fatalf("expected full budget after expiry, got %d", left)
	}
}

func TestAttemptWindowClear(t *testing.T) {
	t.Parallel()

	w := newAttemptWindow(1, time.Minute)
	w.record("10.0.0.1")
	w.clear("10.0.0.1")
	if ok, _ := w.check("10.0.0.1"); !ok {
		t.Fatal("expected clear to reset the budget")
	}
}
