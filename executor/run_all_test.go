package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunAll_CollectsResultsInInputOrder(t *testing.T) {
	e, err := New(WithWorkers(4))
	require.NoError(t, err)
	defer e.Shutdown(context.Background())

	bodies := make([]func(context.Context) (int, error), 5)
	for i := range bodies {
		i := i
		bodies[i] = func(context.Context) (int, error) { return i * i, nil }
	}

	results, err := RunAll(context.Background(), e, bodies)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 4, 9, 16}, results)
}

func TestRunAll_JoinsErrors(t *testing.T) {
	e, err := New(WithWorkers(4))
	require.NoError(t, err)
	defer e.Shutdown(context.Background())

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	bodies := []func(context.Context) (int, error){
		func(context.Context) (int, error) { return 0, errA },
		func(context.Context) (int, error) { return 1, nil },
		func(context.Context) (int, error) { return 0, errB },
	}

	_, err = RunAll(context.Background(), e, bodies)
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errB)
}

func TestMap_AppliesFnConcurrently(t *testing.T) {
	e, err := New(WithWorkers(4))
	require.NoError(t, err)
	defer e.Shutdown(context.Background())

	items := []int{1, 2, 3, 4}
	results, err := Map(context.Background(), e, items, func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{2, 4, 6, 8}, results)
}

func TestMap_EmptyInputReturnsNil(t *testing.T) {
	e, err := New(WithWorkers(1))
	require.NoError(t, err)
	defer e.Shutdown(context.Background())

	results, err := Map(context.Background(), e, []int(nil), func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	require.NoError(t, err)
	require.Nil(t, results)
}

func TestForEach_AppliesSideEffectToEveryItem(t *testing.T) {
	e, err := New(WithWorkers(4))
	require.NoError(t, err)
	defer e.Shutdown(context.Background())

	var mu sync.Mutex
	seen := map[int]bool{}
	items := []int{10, 20, 30}

	err = ForEach(context.Background(), e, items, func(_ context.Context, n int) error {
		mu.Lock()
		seen[n] = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	for _, n := range items {
		require.True(t, seen[n])
	}
}
