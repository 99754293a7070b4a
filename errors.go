package asyncrt

import (
	"errors"
	"fmt"
)

// Namespace prefixes every sentinel error message in this module, mirroring
// the teacher package's flat namespaced-error convention.
const Namespace = "asyncrt"

// Sentinel error kinds, one per §7 error category. Each is suitable as the
// target of errors.Is; call sites that need the cause should use errors.As
// against the wrapping *TaskError value returned alongside it.
var (
	// ErrBodyPanic is wrapped around a recovered panic from a Task or
	// Generator body. The body never crashes its driving goroutine.
	ErrBodyPanic = errors.New(Namespace + ": task body panicked")

	// ErrIOFailure marks a non-retriable failure surfaced by an AsyncSocket
	// operation, re-raised as a body error of the Task that invoked it.
	ErrIOFailure = errors.New(Namespace + ": io operation failed")

	// ErrRegistrationFailed is raised synchronously when the Reactor's
	// multiplexer refuses a descriptor registration.
	ErrRegistrationFailed = errors.New(Namespace + ": reactor registration failed")

	// ErrExecutorStopped is returned by Submit after Shutdown; the
	// corresponding closure is discarded, never run.
	ErrExecutorStopped = errors.New(Namespace + ": executor is stopped")

	// ErrGeneratorExhausted is returned when a Generator is dereferenced
	// after iteration has ended.
	ErrGeneratorExhausted = errors.New(Namespace + ": generator exhausted")

	// ErrNilFrame is returned when a zero-value or moved-from Task is
	// Awaited or Waited.
	ErrNilFrame = errors.New(Namespace + ": task has no frame")
)

// TaskError wraps a body error (or panic) with enough context to identify
// which Task produced it, mirroring the teacher's error_tagging.go
// correlation pattern (TaskMetaError / ExtractTaskID) applied to Task
// instead of to a Workers queue entry.
type TaskError struct {
	Cause error
	ID    any
}

func (e *TaskError) Error() string {
	if e.ID == nil {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: task(id=%v): %s", Namespace, e.ID, e.Cause.Error())
}

func (e *TaskError) Unwrap() error { return e.Cause }
