package executor

import (
	"context"
	"errors"

	"github.com/ygrebnov/asyncrt"
)

// RunAll submits every body to e and waits for all of them to complete,
// adapted from the teacher's RunAll: results are returned in input order
// (simpler than the teacher's completion-order default, since each result
// slot is known up front from the input index rather than a completion
// channel), and the returned error is errors.Join of every task error.
func RunAll[R any](ctx context.Context, e *Executor, bodies []func(context.Context) (R, error)) ([]R, error) {
	tasks := make([]*asyncrt.Task[R], len(bodies))
	for i, body := range bodies {
		tasks[i] = RunOnExecutor(e, body)
	}

	results := make([]R, len(tasks))
	var errs []error
	for i, t := range tasks {
		v, err := t.Await(ctx)
		results[i] = v
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// Map fans items out through fn on e and collects results in input order,
// adapted from the teacher's Map (which delegates to RunAll after wrapping
// each item into a Task).
func Map[T, R any](ctx context.Context, e *Executor, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	bodies := make([]func(context.Context) (R, error), len(items))
	for i := range items {
		item := items[i]
		bodies[i] = func(c context.Context) (R, error) { return fn(c, item) }
	}
	return RunAll(ctx, e, bodies)
}

// ForEach applies fn to each item concurrently on e, adapted from the
// teacher's ForEach (error-only tasks, no result collection).
func ForEach[T any](ctx context.Context, e *Executor, items []T, fn func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}
	bodies := make([]func(context.Context) (struct{}, error), len(items))
	for i := range items {
		item := items[i]
		bodies[i] = func(c context.Context) (struct{}, error) { return struct{}{}, fn(c, item) }
	}
	_, err := RunAll(ctx, e, bodies)
	return err
}
