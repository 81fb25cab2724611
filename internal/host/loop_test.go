package host

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopInvokesCallback(t *testing.T) {
	t.Parallel()

	l := NewLoop(time.Millisecond)
	var ticks atomic.Int64
	if err := l.RegisterTickCallback(func() { ticks.Add(1) }); err != nil {
		t.Fatal(err)
	}
	l.Start()
	defer l.Stop()

	deadline := time.After(time.Second)
	for ticks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d ticks observed", ticks.Load())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestRegisterAfterStartFails(t *testing.T) {
	t.Parallel()

	l := NewLoop(time.Millisecond)
	l.Start()
	defer l.Stop()

	err := l.RegisterTickCallback(func() {})
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("got %v", err)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	t.Parallel()

	l := NewLoop(time.Millisecond)
	if err := l.RegisterTickCallback(func() {}); err != nil {
		t.Fatal(err)
	}
	err := l.RegisterTickCallback(func() {})
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("got %v", err)
	}
}

func TestStopIsIdempotentAndWaits(t *testing.T) {
	t.Parallel()

	l := NewLoop(time.Millisecond)
	_ = l.RegisterTickCallback(func() {})
	l.Start()
	l.Stop()
	l.Stop()
}

func TestStopConcurrent(t *testing.T) {
	t.Parallel()

	l := NewLoop(time.Millisecond)
	_ = l.RegisterTickCallback(func() {})
	l.Start()

	var wg sync.WaitGroup
	for it := 0; it < 8; it++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Stop()
		}()
	}
	wg.Wait()
}
