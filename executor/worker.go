package executor

import (
	"context"
	"fmt"
	"time"
)

// workerKey marks a ctx as running on an Executor worker goroutine,
// grounded on the teacher's context.Context-threading convention already
// used for every task body signature. YieldToExecutor consults it to
// refuse the mid-body self-reschedule §9 calls out as a data race.
type workerKey struct{}

func withWorkerMarker(ctx context.Context) context.Context {
	return context.WithValue(ctx, workerKey{}, true)
}

// isWorkerContext reports whether ctx was handed to the running goroutine
// by an Executor worker loop.
func isWorkerContext(ctx context.Context) bool {
	v, _ := ctx.Value(workerKey{}).(bool)
	return v
}

// runWorker is one long-lived worker goroutine's body: pop the queue's
// front under the shared mutex/cond, run the closure, repeat until
// shutdown and the queue is drained — the literal loop §4.3 describes.
func (e *Executor) runWorker(ctx context.Context) error {
	workerCtx := withWorkerMarker(ctx)
	for {
		job, ok := e.popFront()
		if !ok {
			return nil
		}
		e.runJob(workerCtx, job)
	}
}

func (e *Executor) popFront() (func(context.Context), bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.queue) == 0 && !e.stopped {
		e.cond.Wait()
	}
	if len(e.queue) == 0 {
		return nil, false
	}
	job := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return job, true
}

func (e *Executor) runJob(ctx context.Context, job func(context.Context)) {
	e.queueDepth.Add(-1)
	start := time.Now()
	defer func() {
		e.latency.Record(time.Since(start).Seconds())
		if r := recover(); r != nil {
			e.panicked.Add(1)
			e.cfg.Logger.Log(logEntry(e, fmt.Sprintf("recovered worker panic: %v", r)))
			if e.cfg.OnWorkerPanic != nil {
				e.cfg.OnWorkerPanic(r)
			}
			return
		}
		e.completed.Add(1)
	}()
	job(ctx)
}
