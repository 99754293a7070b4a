//go:build linux

// Package reactor implements the single-threaded, epoll-backed event loop
// that AsyncSocket operations suspend onto, plus the monotonic timer store
// backing After/Cancel.
package reactor

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ygrebnov/asyncrt"
	"github.com/ygrebnov/asyncrt/metrics"
	"github.com/ygrebnov/asyncrt/netpoll"
	"golang.org/x/sys/unix"
)

// Continuation is resumed when its registered readiness or timer deadline
// fires. It is invoked on the Reactor's own goroutine — it must not block.
type Continuation func()

// registration is the one continuation an fd is allowed to carry at a time,
// per §4.4's per-fd-single-continuation invariant.
type registration struct {
	events netpoll.IOEvents
	cont   Continuation
}

// Reactor owns one epoll instance, a ready queue, and a timer min-heap. It
// is meant to run on its own dedicated goroutine via Run — documented as
// "do not share it with Executor workers", matching the thread topology
// the async runtime as a whole assumes.
type Reactor struct {
	cfg    Config
	poller *netpoll.Poller

	readyMu sync.Mutex
	ready   []Continuation

	regMu sync.Mutex
	regs  map[int]*registration

	timerMu sync.Mutex
	timers  timerHeap
	byID    map[uint64]*timerEntry
	nextID  atomic.Uint64

	wakeFd int32

	stopped atomic.Bool

	readyDepth   metrics.UpDownCounter
	timersActive metrics.UpDownCounter
	pollWait     metrics.Histogram
}

// New constructs a Reactor with its own epoll instance and wake-up eventfd.
// It does not start running until Run is called.
func New(opts ...Option) (*Reactor, error) {
	cfg := buildConfig(opts...)

	poller, err := netpoll.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", asyncrt.ErrRegistrationFailed, err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = poller.Close()
		return nil, fmt.Errorf("%w: eventfd: %v", asyncrt.ErrRegistrationFailed, err)
	}

	r := &Reactor{
		cfg:          cfg,
		poller:       poller,
		regs:         make(map[int]*registration),
		byID:         make(map[uint64]*timerEntry),
		wakeFd:       int32(wakeFd),
		readyDepth:   cfg.Metrics.UpDownCounter("asyncrt_reactor_ready_depth"),
		timersActive: cfg.Metrics.UpDownCounter("asyncrt_reactor_timers_pending"),
		pollWait:     cfg.Metrics.Histogram("asyncrt_reactor_poll_wait_seconds"),
	}

	if err := r.poller.Register(wakeFd, netpoll.EventRead); err != nil {
		_ = poller.Close()
		_ = unix.Close(wakeFd)
		return nil, fmt.Errorf("%w: wake fd registration: %v", asyncrt.ErrRegistrationFailed, err)
	}

	return r, nil
}

// Register adds fd to the poller's interest set and associates cont as the
// continuation resumed when those events fire. A second Register call for
// an fd that is already registered replaces its events and continuation
// in place rather than erroring — add-or-replace is the one registration
// behavior the event loop exposes; Modify is just this same path taken
// when the caller already knows the fd exists. Returns
// asyncrt.ErrRegistrationFailed only when the multiplexer itself refuses
// the registration — raised synchronously, never surfaced later at an
// awaiting site, per §7's "Reactor registration failure" category.
func (r *Reactor) Register(fd int, events netpoll.IOEvents, cont Continuation) error {
	r.regMu.Lock()
	_, exists := r.regs[fd]
	r.regMu.Unlock()

	if exists {
		return r.Modify(fd, events, cont)
	}

	r.regMu.Lock()
	r.regs[fd] = &registration{events: events, cont: cont}
	r.regMu.Unlock()

	if err := r.poller.Register(fd, events); err != nil {
		r.regMu.Lock()
		delete(r.regs, fd)
		r.regMu.Unlock()
		return fmt.Errorf("%w: %v", asyncrt.ErrRegistrationFailed, err)
	}
	r.wake()
	return nil
}

// Modify changes the interest set and continuation for an already
// registered fd. Register calls it when it finds the fd already present;
// it returns asyncrt.ErrRegistrationFailed if fd is not registered.
func (r *Reactor) Modify(fd int, events netpoll.IOEvents, cont Continuation) error {
	r.regMu.Lock()
	reg, exists := r.regs[fd]
	if !exists {
		r.regMu.Unlock()
		return fmt.Errorf("%w: fd %d not registered", asyncrt.ErrRegistrationFailed, fd)
	}
	reg.events = events
	reg.cont = cont
	r.regMu.Unlock()

	if err := r.poller.Modify(fd, events); err != nil {
		return fmt.Errorf("%w: %v", asyncrt.ErrRegistrationFailed, err)
	}
	r.wake()
	return nil
}

// Deregister removes fd from the poller and drops its continuation.
func (r *Reactor) Deregister(fd int) error {
	r.regMu.Lock()
	_, exists := r.regs[fd]
	delete(r.regs, fd)
	r.regMu.Unlock()
	if !exists {
		return nil
	}
	return r.poller.Unregister(fd)
}

// After schedules cb to run once, no earlier than d from now, and returns a
// timer id usable with Cancel. Monotonic deadlines are derived from
// time.Now().Add(d); the id breaks ties between equal deadlines, keeping
// ordering stable regardless of insertion order.
func (r *Reactor) After(d time.Duration, cb func()) uint64 {
	id := r.nextID.Add(1)
	e := &timerEntry{deadline: time.Now().Add(d), id: id, cb: cb}

	r.timerMu.Lock()
	heap.Push(&r.timers, e)
	r.byID[id] = e
	r.timerMu.Unlock()

	r.timersActive.Add(1)
	r.wake()
	return id
}

// Cancel removes a pending timer by id. Idempotent: canceling an id that
// already fired or was already canceled reports false without error.
func (r *Reactor) Cancel(id uint64) bool {
	r.timerMu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.timerMu.Unlock()
		return false
	}
	delete(r.byID, id)
	heap.Remove(&r.timers, e.index)
	r.timerMu.Unlock()

	r.timersActive.Add(-1)
	return true
}

// enqueueReady appends cont to the ready queue under lock, the swap-under-
// lock drain target for the next Run iteration (§4.4 step 1).
func (r *Reactor) enqueueReady(cont Continuation) {
	r.readyMu.Lock()
	r.ready = append(r.ready, cont)
	r.readyMu.Unlock()
	r.readyDepth.Add(1)
}

func (r *Reactor) drainReady() []Continuation {
	r.readyMu.Lock()
	ready := r.ready
	r.ready = nil
	r.readyMu.Unlock()
	if len(ready) > 0 {
		r.readyDepth.Add(-int64(len(ready)))
	}
	return ready
}

func (r *Reactor) wake() {
	var one [8]byte
	one[0] = 1
	_, _ = unix.Write(int(r.wakeFd), one[:])
}

func (r *Reactor) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(int(r.wakeFd), buf[:])
		if err != nil {
			return
		}
	}
}

// nextTimeout computes the EpollWait timeout in milliseconds: 0 if a timer
// is already due, the time until the earliest pending deadline if one
// exists, or cfg.MaxPollWaitMillis as an idle ceiling so Run still wakes up
// periodically to recheck ctx cancellation.
func (r *Reactor) nextTimeout() int {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	if len(r.timers) == 0 {
		return r.cfg.MaxPollWaitMillis
	}
	d := time.Until(r.timers[0].deadline)
	if d <= 0 {
		return 0
	}
	ms := int(d / time.Millisecond)
	if ms > r.cfg.MaxPollWaitMillis {
		return r.cfg.MaxPollWaitMillis
	}
	if ms == 0 {
		return 1
	}
	return ms
}

// fireDueTimers pops and runs every timer whose deadline has passed,
// outside the timer lock (a callback may itself call After/Cancel).
func (r *Reactor) fireDueTimers() {
	now := time.Now()
	var due []*timerEntry
	r.timerMu.Lock()
	for len(r.timers) > 0 && !r.timers[0].deadline.After(now) {
		e := heap.Pop(&r.timers).(*timerEntry)
		delete(r.byID, e.id)
		due = append(due, e)
	}
	r.timerMu.Unlock()

	if len(due) > 0 {
		r.timersActive.Add(-int64(len(due)))
	}
	for _, e := range due {
		e.cb()
	}
}

// Run drives the event loop until ctx is canceled or a fatal multiplexer
// error occurs. Per §7, an unrecoverable poll error terminates the loop and
// marks the Reactor stopped rather than retrying indefinitely.
func (r *Reactor) Run(ctx context.Context) error {
	r.cfg.Logger.Log(asyncrt.LogEntry{
		Level: asyncrt.LevelDebug, Time: time.Now(), Source: "reactor",
		Message: "event loop starting",
	})
	defer r.stopped.Store(true)
	defer r.poller.Close()
	defer r.cfg.Logger.Log(asyncrt.LogEntry{
		Level: asyncrt.LevelDebug, Time: time.Now(), Source: "reactor",
		Message: "event loop stopped",
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Step 1: drain and run whatever is already ready.
		for _, cont := range r.drainReady() {
			cont()
		}

		timeout := r.nextTimeout()
		start := time.Now()
		events, err := r.poller.Poll(timeout)
		r.pollWait.Record(time.Since(start).Seconds())
		if err != nil {
			r.cfg.Logger.Log(asyncrt.LogEntry{
				Level: asyncrt.LevelError, Time: time.Now(), Source: "reactor",
				Message: fmt.Sprintf("fatal poll error: %v", err),
			})
			return fmt.Errorf("%w: %v", asyncrt.ErrIOFailure, err)
		}

		// Step 2: dispatch each ready fd's continuation exactly once.
		for _, ev := range events {
			if int(r.wakeFd) == ev.Fd {
				r.drainWake()
				continue
			}
			r.regMu.Lock()
			reg, ok := r.regs[ev.Fd]
			r.regMu.Unlock()
			if ok && reg.cont != nil {
				r.enqueueReady(reg.cont)
			}
		}

		// Step 3: fire any timers whose deadline has passed.
		r.fireDueTimers()
	}
}

// Stopped reports whether Run has returned (ctx canceled or fatal error).
func (r *Reactor) Stopped() bool { return r.stopped.Load() }
