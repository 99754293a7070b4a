// Package executor implements the fixed-size worker pool that drives Tasks
// submitted via RunOnExecutor/Detach, and the YieldToExecutor hand-off
// primitive.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ygrebnov/asyncrt"
	"github.com/ygrebnov/asyncrt/metrics"
	"golang.org/x/sync/errgroup"
)

// Executor is a fixed-size pool of worker goroutines draining a shared
// FIFO queue, protected by a mutex and a condition variable rather than the
// teacher's channel-based task queue — this one piece is implemented
// literally per the wording that describes it, while the surrounding
// Config/Option/lifecycle/metrics idiom stays the teacher's.
type Executor struct {
	cfg Config

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func(context.Context)
	stopped bool

	lifecycle *lifecycleCoordinator
	group     *errgroup.Group

	queueDepth metrics.UpDownCounter
	submitted  metrics.Counter
	completed  metrics.Counter
	panicked   metrics.Counter
	latency    metrics.Histogram
}

// New constructs and starts an Executor with cfg.Workers worker goroutines
// (runtime.GOMAXPROCS(0) if unset).
func New(opts ...Option) (*Executor, error) {
	cfg, err := buildConfig(opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Workers == 0 {
		cfg.Workers = uint(runtime.GOMAXPROCS(0))
		if cfg.Workers == 0 {
			cfg.Workers = 1
		}
	}

	e := &Executor{
		cfg:        cfg,
		queue:      make([]func(context.Context), 0, cfg.QueueCapacity),
		queueDepth: cfg.Metrics.UpDownCounter("asyncrt_executor_queue_depth"),
		submitted:  cfg.Metrics.Counter("asyncrt_executor_tasks_submitted"),
		completed:  cfg.Metrics.Counter("asyncrt_executor_tasks_completed"),
		panicked:   cfg.Metrics.Counter("asyncrt_executor_tasks_panicked"),
		latency:    cfg.Metrics.Histogram("asyncrt_executor_task_seconds"),
	}
	e.cond = sync.NewCond(&e.mu)

	g, gctx := errgroup.WithContext(context.Background())
	e.group = g
	for i := uint(0); i < cfg.Workers; i++ {
		g.Go(func() error { return e.runWorker(gctx) })
	}

	e.lifecycle = newLifecycleCoordinator(
		func() {
			e.mu.Lock()
			e.stopped = true
			e.mu.Unlock()
			e.cond.Broadcast()
			e.cfg.Logger.Log(logEntryLevel(e, asyncrt.LevelDebug, "executor stopping: broadcast sent to workers"))
		},
		e.group.Wait,
		nil,
	)

	e.cfg.Logger.Log(logEntryLevel(e, asyncrt.LevelDebug, fmt.Sprintf("executor started with %d workers", cfg.Workers)))
	return e, nil
}

// Workers reports the number of worker goroutines this Executor started.
func (e *Executor) Workers() uint { return e.cfg.Workers }

// Submit enqueues fn to run on the next available worker. It returns
// asyncrt.ErrExecutorStopped without running fn if Shutdown has already
// been initiated — the "Executor post-shutdown submission" policy from
// §7, silently dropped by default, observable via WithOnDroppedSubmission.
func (e *Executor) Submit(fn func(context.Context)) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		e.cfg.Logger.Log(logEntry(e, "submission dropped: executor stopped"))
		if e.cfg.OnDroppedSubmission != nil {
			e.cfg.OnDroppedSubmission()
		}
		return asyncrt.ErrExecutorStopped
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	e.submitted.Add(1)
	e.queueDepth.Add(1)
	e.cond.Signal()
	return nil
}

// Shutdown stops accepting new submissions, wakes every worker blocked
// waiting on the queue, and waits for all of them to drain the remaining
// queue and return. Safe to call more than once; every caller observes the
// same result.
func (e *Executor) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- e.lifecycle.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func logEntry(e *Executor, msg string) asyncrt.LogEntry {
	return logEntryLevel(e, asyncrt.LevelWarn, msg)
}

func logEntryLevel(e *Executor, level asyncrt.LogLevel, msg string) asyncrt.LogEntry {
	return asyncrt.LogEntry{
		Level:   level,
		Time:    time.Now(),
		Source:  "executor",
		Message: msg,
	}
}

// RunOnExecutor builds a Task[T] around body, submits it to e, and returns
// the Task as a future: awaiting it blocks until the worker that picked it
// up has run body to completion. Anchoring follows §9's "Frame-lifetime
// across the entry point": the Task itself is the shared anchor, and the
// closure submitted to e captures it by reference, so the anchor's last
// owner is that closure once it has driven the Task to completion.
func RunOnExecutor[T any](e *Executor, body func(context.Context) (T, error)) *asyncrt.Task[T] {
	t := asyncrt.New(body)
	if err := e.Submit(func(ctx context.Context) { t.Drive(ctx) }); err != nil {
		return asyncrt.Failed[T](fmt.Errorf("executor: %w", err))
	}
	return t
}

// Detach submits body to run on e and discards the resulting Task handle:
// fire-and-forget, with the Task's own goroutine-free Drive keeping the
// closure as the sole owner of body's lifetime for as long as it runs —
// nothing else retains a reference, so there is nothing to leak once Drive
// returns.
func Detach(e *Executor, body func(context.Context) (struct{}, error)) {
	t := asyncrt.New(body)
	_ = e.Submit(func(ctx context.Context) { t.Drive(ctx) })
}

// YieldToExecutor hands control to e and returns a Task that completes once
// some worker has picked it up and run the (trivial) hop — a way for code
// running outside the Executor (not itself a worker) to arrange for its
// continuation to resume on a worker goroutine. Per §9's "Mid-body
// self-reschedule is forbidden", calling this from within an Executor
// worker's own ctx is rejected rather than silently racing the queue.
func YieldToExecutor(ctx context.Context, e *Executor) (*asyncrt.Task[struct{}], error) {
	if isWorkerContext(ctx) {
		return nil, fmt.Errorf("executor: yield_to_executor called from within an executor worker")
	}
	return RunOnExecutor(e, func(context.Context) (struct{}, error) {
		return struct{}{}, nil
	}), nil
}
