package asyncrt

import (
	"context"
	"fmt"
	"sync"
)

// Task is a lazy, move-only handle to a single T-producing computation.
// Constructing a Task with New does not run its body — the body starts on
// the first call to Await, Wait, or on adoption by RunOnExecutor/Detach.
// This is the Go realization of "initially suspended": there is no
// language-level coroutine frame to suspend, so a Task instead owns a
// goroutine that is not spawned until first driven.
//
// A *Task[T] must not be copied after first use; treat it as move-only,
// the same contract the underlying coroutine frame it models enforces.
type Task[T any] struct {
	mu      sync.Mutex
	body    func(context.Context) (T, error)
	started bool
	done    chan struct{} // closed exactly once, after result/err are set
	result  T
	err     error
	id      any
}

// New constructs a Task[T] whose body runs exactly once, on first drive.
// Any panic raised by body is recovered and surfaced as a body error
// wrapping ErrBodyPanic, never propagated out of the goroutine that ran it
// (§7: "Any uncaught error is captured — never propagated out of the
// resumption that ran the body").
func New[T any](body func(context.Context) (T, error)) *Task[T] {
	return &Task[T]{body: body, done: make(chan struct{})}
}

// Completed returns a Task that is already done, carrying v and no error.
// Awaiting it returns immediately per §4.1's "A's frame is already
// completed" fast path.
func Completed[T any](v T) *Task[T] {
	t := &Task[T]{done: make(chan struct{}), result: v}
	close(t.done)
	return t
}

// Failed returns a Task that is already done, carrying err.
func Failed[T any](err error) *Task[T] {
	t := &Task[T]{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

// ID returns the task's correlation identifier, or nil if none was set via
// WithID.
func (t *Task[T]) ID() any {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// WithID attaches a correlation identifier used by error wrapping and
// logging/metrics, mirroring the teacher's error-tagging convention but
// carried directly on the Task instead of threaded through a Workers queue.
func (t *Task[T]) WithID(id any) *Task[T] {
	t.mu.Lock()
	t.id = id
	t.mu.Unlock()
	return t
}

// start begins the body exactly once. Safe to call from any goroutine;
// exactly one caller wins the race and spawns the driving goroutine — the
// same compare-and-set-then-drive pattern the executor's run-on-executor
// anchor uses in §4.3, applied here to the Task itself so that a bare
// Await (with no Executor involved) is just as safe against double-drive.
func (t *Task[T]) start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	body := t.body
	t.mu.Unlock()

	if body == nil {
		t.finish(*new(T), ErrNilFrame)
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.finish(*new(T), fmt.Errorf("%w: %v", ErrBodyPanic, r))
			}
		}()
		v, err := body(ctx)
		t.finish(v, err)
	}()
}

// Drive runs body to completion on the calling goroutine, exactly once,
// without spawning a goroutine of its own. It exists for hosts that already
// provide a goroutine to run on — an Executor worker — so that
// RunOnExecutor's body runs directly on the worker, matching §4.3's "run on
// executor" rather than spawning a second goroutine the worker would then
// just block on. A bare Await/Wait still uses start, which does spawn,
// since there is no host-provided goroutine in that case.
func (t *Task[T]) Drive(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	body := t.body
	t.mu.Unlock()

	if body == nil {
		t.finish(*new(T), ErrNilFrame)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.finish(*new(T), fmt.Errorf("%w: %v", ErrBodyPanic, r))
		}
	}()
	v, err := body(ctx)
	t.finish(v, err)
}

// finish populates the result slot exactly once and wakes every current and
// future Await/Wait caller. Closing a channel rather than invoking a single
// stored continuation is the natural Go generalization of §3's "if a
// continuation is registered it is resumed exactly once": every receiver on
// a closed channel observes the close, so N-way fan-out of a Task's result
// is safe without extra bookkeeping.
//
// A non-nil err is wrapped in a *TaskError carrying the Task's correlation
// ID (if WithID was used), so a caller that only has the returned error can
// still recover which Task produced it via errors.As — otherwise WithID's
// ID would never be observable by anything outside the Task itself.
func (t *Task[T]) finish(v T, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.done:
		return // already finished; unreachable under normal use, kept defensive
	default:
	}
	t.result = v
	if err != nil {
		err = &TaskError{Cause: err, ID: t.id}
	}
	t.err = err
	close(t.done)
}

// Await drives the Task to completion, suspending the calling goroutine
// until the result is available or ctx is cancelled first.
//
// If the Task is nil (a moved-from / zero-value Task observed by an
// awaiter), Await returns ErrNilFrame immediately, matching §7's
// "Null-frame observation" policy.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	if t == nil {
		var zero T
		return zero, ErrNilFrame
	}
	t.start(ctx)
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait is the sync_wait entry point: it behaves exactly like Await, so the
// body runs on the goroutine that start spawns, not on the calling
// goroutine, which blocks until done() is observed. Per §4.1, this is only safe for
// Tasks whose body performs no cross-thread hand-off (no RunOnExecutor
// submission it then waits on, no Reactor registration) — Wait does not
// and cannot detect that case; it is a documented caller obligation, not
// an enforced one.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	return t.Await(ctx)
}

// Done reports whether the Task's result slot has already been populated,
// without blocking. A nil Task is considered done (Await/Wait on it raises
// ErrNilFrame, so there is nothing left to wait for).
func (t *Task[T]) Done() bool {
	if t == nil {
		return true
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Handle exposes the underlying readiness channel for adapter code (e.g. a
// select across several Tasks, or the Reactor bridging an I/O suspension
// back into Task completion).
func (t *Task[T]) Handle() <-chan struct{} {
	if t == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.done
}
