package instance

import (
	"sync"
	"time"
)

// attemptWindow tracks PIN attempts per client IP over a rolling window.
// Once an IP accumulates max attempts inside the window, further attempts
// are rejected until the oldest one ages out.  A single lock is enough:
// contention is low and the critical sections are short.
type attemptWindow struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	attempts map[string][]time.Time

	now func() time.Time // test hook
}

func newAttemptWindow(max int, window time.Duration) *attemptWindow {
	return &attemptWindow{
		max:      max,
		window:   window,
		attempts: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// check prunes the IP's history to the window and reports whether another
// attempt is allowed, plus the remaining lockout when it is not.
func (w *attemptWindow) check(ip string) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	kept := w.prune(ip, now)
	if len(kept) < w.max {
		return true, 0
	}
	oldest := kept[0]
	remaining := w.window - now.Sub(oldest)
	if remaining < 0 {
		remaining = 0
	}
	return false, remaining
}

// record notes one attempt for the IP, successful or not.
func (w *attemptWindow) record(ip string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[ip] = append(w.prune(ip, w.now()), w.now())
}

// left reports how many attempts the IP has remaining in the window.
func (w *attemptWindow) left(ip string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.max - len(w.prune(ip, w.now()))
	if n < 0 {
		return 0
	}
	return n
}

// clear forgets the IP's history, called after a successful validation.
func (w *attemptWindow) clear(ip string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, ip)
}

// prune drops aged-out attempts and stores the survivors.  Caller holds the
// lock.
func (w *attemptWindow) prune(ip string, now time.Time) []time.Time {
	old := w.attempts[ip]
	kept := old[:0]
	for _, t := range old {
		if now.Sub(t) < w.window {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(w.attempts, ip)
		return nil
	}
	w.attempts[ip] = kept
	return kept
}
