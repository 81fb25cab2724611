// Package host provides the tick-loop side of the executor contract.
//
// In production the host application (an editor with an exclusive main
// thread) drives the tick callback itself; Loop stands in for it when
// hostlink runs standalone and in tests.  The registration rules mirror the
// real host: the callback must be installed before the loop starts, and
// only once.
package host

import (
	"errors"
	"sync"
	"time"
)

// Registration errors surfaced to [executor.Executor.Attach].
var (
	ErrAlreadyStarted    = errors.New("tick loop already started")
	ErrAlreadyRegistered = errors.New("tick callback already registered")
)

// Loop invokes a registered callback on a single dedicated goroutine at a
// fixed interval, standing in for the host's exclusive-access thread.
type Loop struct {
	interval time.Duration

	mu      sync.Mutex
	fn      func()
	started bool
	stopped bool

	stop chan struct{}
	done chan struct{}
}

// NewLoop creates a stopped loop ticking at the given interval.
func NewLoop(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Loop{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// RegisterTickCallback installs the per-tick callback.  It fails once the
// loop is running or when a callback is already installed, modeling the
// host's init-time, main-thread-only registration window.
func (l *Loop) RegisterTickCallback(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrAlreadyStarted
	}
	if l.fn != nil {
		return ErrAlreadyRegistered
	}
	l.fn = fn
	return nil
}

// Start launches the tick goroutine.  Starting an already-started loop is a
// no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	fn := l.fn
	l.mu.Unlock()

	go func() {
		defer close(l.done)
		t := time.NewTicker(l.interval)
		defer t.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-t.C:
				if fn != nil {
					fn()
				}
			}
		}
	}()
}

// Stop halts the tick goroutine and waits for it to exit.  Safe to call
// multiple times, including concurrently; every caller returns only after
// the goroutine is gone.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	first := !l.stopped
	l.stopped = true
	l.mu.Unlock()

	if first {
		close(l.stop)
	}
	<-l.done
}
