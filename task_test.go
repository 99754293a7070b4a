package asyncrt

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTask_DoesNotRunBodyUntilDriven(t *testing.T) {
	var started atomic.Bool
	task := New(func(context.Context) (int, error) {
		started.Store(true)
		return 1, nil
	})

	time.Sleep(10 * time.Millisecond)
	require.False(t, started.Load(), "body must not run before Await/Wait")

	_, err := task.Await(context.Background())
	require.NoError(t, err)
	require.True(t, started.Load())
}

func TestTask_BodyRunsExactlyOnceAcrossConcurrentAwaiters(t *testing.T) {
	var runs atomic.Int32
	task := New(func(context.Context) (int, error) {
		runs.Add(1)
		time.Sleep(20 * time.Millisecond)
		return 9, nil
	})

	const n = 20
	results := make(chan int, n)
	for i := 0; i < n; i++ {
		go func() {
			v, err := task.Await(context.Background())
			require.NoError(t, err)
			results <- v
		}()
	}
	for i := 0; i < n; i++ {
		require.Equal(t, 9, <-results)
	}
	require.EqualValues(t, 1, runs.Load())
}

func TestTask_PanicIsRecoveredAsBodyError(t *testing.T) {
	task := New(func(context.Context) (int, error) {
		panic("kaboom")
	})
	_, err := task.Await(context.Background())
	require.ErrorIs(t, err, ErrBodyPanic)
}

func TestTask_CompletedAndFailedFastPaths(t *testing.T) {
	ok := Completed(42)
	v, err := ok.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.True(t, ok.Done())

	sentinel := errors.New("boom")
	bad := Failed[int](sentinel)
	_, err = bad.Await(context.Background())
	require.ErrorIs(t, err, sentinel)
	require.True(t, bad.Done())
}

func TestTask_AwaitRespectsContextCancellation(t *testing.T) {
	release := make(chan struct{})
	task := New(func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := task.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTask_NilTaskAwaitReturnsErrNilFrame(t *testing.T) {
	var task *Task[int]
	_, err := task.Await(context.Background())
	require.ErrorIs(t, err, ErrNilFrame)
	require.True(t, task.Done())
}

func TestTask_DoneReflectsCompletionWithoutBlocking(t *testing.T) {
	release := make(chan struct{})
	task := New(func(context.Context) (int, error) {
		<-release
		return 1, nil
	})

	require.False(t, task.Done())
	go task.Await(context.Background())
	time.Sleep(10 * time.Millisecond)
	require.False(t, task.Done())
	close(release)

	require.Eventually(t, task.Done, time.Second, time.Millisecond)
}

func TestTask_IDRoundTrips(t *testing.T) {
	task := New(func(context.Context) (int, error) { return 0, nil }).WithID("req-7")
	require.Equal(t, "req-7", task.ID())
}

func TestTask_WaitIsAliasForAwait(t *testing.T) {
	task := Completed("hi")
	v, err := task.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hi", v)
}

func TestTask_DriveRunsOnCallingGoroutineWithoutSpawning(t *testing.T) {
	callerGoroutineUsed := make(chan bool, 1)
	task := New(func(context.Context) (int, error) {
		callerGoroutineUsed <- true
		return 3, nil
	})

	done := make(chan struct{})
	go func() {
		task.Drive(context.Background())
		close(done)
	}()

	select {
	case <-callerGoroutineUsed:
	case <-time.After(time.Second):
		t.Fatal("Drive never ran the body")
	}
	<-done

	v, err := task.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, v)
}

func TestTask_DriveIsIdempotent(t *testing.T) {
	var runs atomic.Int32
	task := New(func(context.Context) (int, error) {
		runs.Add(1)
		return 1, nil
	})
	task.Drive(context.Background())
	task.Drive(context.Background())
	_, _ = task.Await(context.Background())
	require.EqualValues(t, 1, runs.Load())
}

func TestTask_FailureCarriesWithIDCorrelationViaTaskError(t *testing.T) {
	sentinel := errors.New("downstream boom")
	task := New(func(context.Context) (int, error) {
		return 0, sentinel
	}).WithID("req-42")

	_, err := task.Await(context.Background())
	require.ErrorIs(t, err, sentinel)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	require.Equal(t, "req-42", taskErr.ID)
	require.Contains(t, err.Error(), "req-42")
}

func TestTask_FailureWithoutIDIsNotWrappedWithCorrelation(t *testing.T) {
	sentinel := errors.New("boom")
	task := New(func(context.Context) (int, error) {
		return 0, sentinel
	})

	_, err := task.Await(context.Background())
	require.ErrorIs(t, err, sentinel)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	require.Nil(t, taskErr.ID)
}

// get returns a Task producing a base value, mirroring §8's get() example.
func get() *Task[int] {
	return New(func(context.Context) (int, error) { return 21, nil })
}

// double builds a Task whose body itself Awaits another Task — the nested-
// composition shape §8 calls out (double(get())): a frame suspended inside
// another frame's body, not just suspended from plain calling code.
func double(inner *Task[int]) *Task[int] {
	return New(func(ctx context.Context) (int, error) {
		v, err := inner.Await(ctx)
		if err != nil {
			return 0, err
		}
		return v * 2, nil
	})
}

func TestTask_NestedCompositionAwaitsInnerTaskFromOuterBody(t *testing.T) {
	outer := double(get())
	v, err := outer.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

// TestTask_DeepAwaitChainCompletesWithoutStackGrowth builds a chain of
// 10,000 Tasks, each Awaiting the one before it from within its own body —
// the symmetric-transfer property from §8/§9: a long chain of suspensions
// resumes without the call stack growing with chain depth, since each
// Await blocks on a channel receive rather than recursing through Go call
// frames held open across the whole chain.
func TestTask_DeepAwaitChainCompletesWithoutStackGrowth(t *testing.T) {
	const depth = 10000

	base := Completed(0)
	chain := base
	for i := 0; i < depth; i++ {
		prev := chain
		chain = New(func(ctx context.Context) (int, error) {
			v, err := prev.Await(ctx)
			if err != nil {
				return 0, err
			}
			return v + 1, nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	v, err := chain.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, depth, v)
}
