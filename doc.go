// Package asyncrt provides a lazy, goroutine-backed asynchronous execution
// core: a single-result Task, a multi-value Generator, and the glue that
// drives both onto the fixed-size worker pool in asyncrt/executor or the
// single-threaded I/O reactor in asyncrt/reactor.
//
// Constructors
//   - New[T](body): constructs a Task[T]. The body does not run until the
//     Task is driven by Await, Wait, or RunOnExecutor.
//   - NewGenerator[T](body): constructs a Generator[T]. The body does not
//     run until the first call to Next.
//
// Driving a Task
//   - (*Task[T]).Await(ctx): suspension-style composition from within
//     another Task's body, or from plain calling code.
//   - (*Task[T]).Wait(ctx): the sync_wait entry point. Safe only for Tasks
//     whose body performs no cross-thread hand-off (no Reactor
//     registration, no RunOnExecutor submission it waits back on).
//   - executor.RunOnExecutor(ex, body): builds a Task[T] whose body runs on
//     one of ex's worker goroutines and returns that *Task[T] directly —
//     there is no separate future type.
//   - executor.Detach(ex, body): fire-and-forget; the anchor's lifetime is
//     held by the submitted closure alone.
//
// Defaults
// asocket.DefaultReactor (Linux only) returns a lazily-constructed
// process-wide Reactor, per the single-global-instance decision recorded in
// DESIGN.md. It lives in asocket rather than here so this package never
// needs to import reactor (which already imports this one). Most programs
// need only one Reactor; construct additional ones via reactor.New only
// once the single-Reactor-thread bottleneck this implies is already a
// measured problem.
package asyncrt
