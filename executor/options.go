package executor

import (
	"fmt"

	"github.com/ygrebnov/asyncrt"
	"github.com/ygrebnov/asyncrt/metrics"
)

// Option configures an Executor. Use New(opts...) to construct one,
// mirroring the teacher's functional-options Option type for Workers.
type Option func(*Config)

// WithWorkers sets the fixed number of worker goroutines. Panics if n == 0,
// the same panic-on-invalid-option behavior as the teacher's WithFixedPool.
func WithWorkers(n uint) Option {
	return func(c *Config) {
		if n == 0 {
			panic("executor: WithWorkers requires n > 0")
		}
		c.Workers = n
	}
}

// WithQueueCapacity sets the advisory initial backing-slice capacity for
// the submission deque.
func WithQueueCapacity(n uint) Option {
	return func(c *Config) { c.QueueCapacity = n }
}

// WithMetrics installs a metrics.Provider recording queue depth and task
// submission/completion/panic counters.
func WithMetrics(p metrics.Provider) Option {
	return func(c *Config) {
		if p == nil {
			panic("executor: WithMetrics requires a non-nil Provider")
		}
		c.Metrics = p
	}
}

// WithLogger installs a structured Logger for warn/debug level events.
func WithLogger(l asyncrt.Logger) Option {
	return func(c *Config) {
		if l == nil {
			panic("executor: WithLogger requires a non-nil Logger")
		}
		c.Logger = l
	}
}

// WithOnDroppedSubmission installs an observer invoked whenever Submit is
// called after Shutdown has been initiated, resolving Open Question (i):
// the default behavior (silent drop) is unchanged, this only adds
// visibility.
func WithOnDroppedSubmission(fn func()) Option {
	return func(c *Config) { c.OnDroppedSubmission = fn }
}

// WithOnWorkerPanic installs an observer invoked whenever a submitted
// closure panics. The panic is always recovered regardless of this option;
// this only adds visibility into otherwise-swallowed panics.
func WithOnWorkerPanic(fn func(recovered any)) Option {
	return func(c *Config) { c.OnWorkerPanic = fn }
}

func buildConfig(opts ...Option) (Config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			panic("executor: nil Option")
		}
		opt(&cfg)
	}
	if err := validateConfig(&cfg); err != nil {
		return cfg, fmt.Errorf("executor: invalid config: %w", err)
	}
	return cfg, nil
}
