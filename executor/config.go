package executor

import (
	"github.com/ygrebnov/asyncrt"
	"github.com/ygrebnov/asyncrt/metrics"
)

// Config holds Executor configuration. Built via defaultConfig and mutated
// by Option functions, mirroring the teacher's config.go/defaultConfig split.
type Config struct {
	// Workers is the number of long-lived worker goroutines. Zero (the
	// value defaultConfig leaves before New fills it in) means
	// runtime.GOMAXPROCS(0).
	Workers uint

	// QueueCapacity is an advisory initial capacity for the submission
	// deque's backing slice. The queue grows unbounded past this; it is
	// not a backpressure limit.
	QueueCapacity uint

	// Metrics receives queue-depth, submission, completion, and panic
	// instrumentation. Default: metrics.NewNoopProvider().
	Metrics metrics.Provider

	// Logger receives warn-level faults (dropped post-shutdown
	// submissions, worker panics) and debug-level state transitions.
	// Default: a no-op logger.
	Logger asyncrt.Logger

	// OnDroppedSubmission, if set, is invoked whenever Submit is called
	// after Shutdown has been initiated. Default: nil (silently dropped).
	OnDroppedSubmission func()

	// OnWorkerPanic, if set, is invoked whenever a submitted closure
	// panics. Default: nil (the panic is recovered and swallowed).
	OnWorkerPanic func(recovered any)
}

// defaultConfig centralizes default values, mirroring the teacher's
// defaultConfig() for Workers.
func defaultConfig() Config {
	return Config{
		Workers:       0, // resolved to runtime.GOMAXPROCS(0) in New
		QueueCapacity: 16,
		Metrics:       metrics.NewNoopProvider(),
		Logger:        asyncrt.NewNoopLogger(),
	}
}

// validateConfig performs lightweight invariant checks, mirroring the
// teacher's validateConfig.
func validateConfig(cfg *Config) error {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopProvider()
	}
	if cfg.Logger == nil {
		cfg.Logger = asyncrt.NewNoopLogger()
	}
	return nil
}
