// Package executor marshals work onto the host's exclusive-access thread.
//
// Worker goroutines submit closures and block for the result; the host's
// tick callback drains the queue on the one thread allowed to touch the
// host API.  When no tick callback could be registered the executor runs in
// degraded mode and executes work synchronously on the calling goroutine,
// which is the intended behavior outside a live host (tests, tooling).
package executor

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hostlink/hostlink/internal/domain"
)

// Work is one unit of host-thread work.
type Work func() (any, error)

// TickRegistrar is the host-side primitive that installs a callback invoked
// once per host tick on the exclusive thread.  Registration fails when not
// called from that thread at host-init time.
type TickRegistrar interface {
	RegisterTickCallback(fn func()) error
}

type queued struct {
	id   int64
	name string
	work Work
}

type outcome struct {
	value any
	err   error
}

// Executor owns the pending-command queue and result correlation.
// SubmitAndWait is safe for concurrent use; Drain runs on exactly one
// thread and never concurrently with itself.
type Executor struct {
	log      *slog.Logger
	queue    chan queued
	pending  sync.Map // id -> chan outcome
	nextID   atomic.Int64
	attached atomic.Bool
}

// New creates an executor with a bounded queue.
func New(queueSize int, logger *slog.Logger) *Executor {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Executor{
		log:   logger,
		queue: make(chan queued, queueSize),
	}
}

// Attach registers the drain callback with the host.  On failure the
// executor stays in degraded mode for the rest of the process; the error is
// returned for logging, not escalation.
func (e *Executor) Attach(reg TickRegistrar) error {
	if e.attached.Load() {
		return nil
	}
	if err := reg.RegisterTickCallback(e.Drain); err != nil {
		e.log.Warn("tick callback registration failed; executor in degraded mode", "err", err)
		return err
	}
	e.attached.Store(true)
	e.log.Info("exclusive-thread executor attached")
	return nil
}

// Attached reports whether the tick callback was registered.
func (e *Executor) Attached() bool {
	return e.attached.Load()
}

// SubmitAndWait queues work for the exclusive thread and blocks until its
// result arrives or timeout elapses.  A timeout abandons the wait only: the
// work may still run later and its result is discarded.  In degraded mode
// the work runs synchronously on the calling goroutine.
func (e *Executor) SubmitAndWait(name string, work Work, timeout time.Duration) (any, error) {
	if !e.attached.Load() {
		res := runSafely(name, work)
		return res.value, res.err
	}

	id := e.nextID.Add(1)
	ch := make(chan outcome, 1)
	e.pending.Store(id, ch)

	select {
	case e.queue <- queued{id: id, name: name, work: work}:
	default:
		e.pending.Delete(id)
		return nil, fmt.Errorf("%w: %s", domain.ErrQueueFull, name)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.value, res.err
	case <-timer.C:
		e.pending.Delete(id)
		return nil, fmt.Errorf("%w: %s after %s", domain.ErrTimeout, name, timeout)
	}
}

// Drain pops and executes every currently queued command in FIFO order.
// Invoked by the host tick callback on the exclusive thread.  A failing
// command never blocks the ones behind it.
func (e *Executor) Drain() {
	for {
		select {
		case q := <-e.queue:
			res := runSafely(q.name, q.work)
			v, ok := e.pending.LoadAndDelete(q.id)
			if !ok {
				// The waiter timed out and left; drop the result.
				e.log.Debug("discarding result for abandoned command", "command", q.name, "id", q.id)
				continue
			}
			v.(chan outcome) <- res
		default:
			return
		}
	}
}

func runSafely(name string, work Work) (res outcome) {
	defer func() {
		if r := recover(); r != nil {
			res = outcome{err: &domain.CommandError{
				Command:   name,
				Err:       fmt.Errorf("panic: %v", r),
				Traceback: string(debug.Stack()),
			}}
		}
	}()
	v, err := work()
	return outcome{value: v, err: err}
}
