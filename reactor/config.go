package reactor

import (
	"github.com/ygrebnov/asyncrt"
	"github.com/ygrebnov/asyncrt/metrics"
)

// Config holds Reactor configuration, mirroring the teacher's Config/Option
// split carried over from executor.
type Config struct {
	// Metrics receives ready-queue depth, pending-timer count, and
	// poll-wait duration instrumentation. Default: metrics.NewNoopProvider().
	Metrics metrics.Provider

	// Logger receives error-level fatal poll errors and debug-level state
	// transitions (loop start and stop).
	Logger asyncrt.Logger

	// MaxPollWaitMillis bounds how long a single EpollWait call may block when
	// no timer is pending, so the loop still periodically rechecks ctx
	// cancellation even with nothing scheduled.
	MaxPollWaitMillis int
}

func defaultConfig() Config {
	return Config{
		Metrics:           metrics.NewNoopProvider(),
		Logger:            asyncrt.NewNoopLogger(),
		MaxPollWaitMillis: 1000,
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopProvider()
	}
	if cfg.Logger == nil {
		cfg.Logger = asyncrt.NewNoopLogger()
	}
	if cfg.MaxPollWaitMillis <= 0 {
		cfg.MaxPollWaitMillis = 1000
	}
	return nil
}

// Option configures a Reactor.
type Option func(*Config)

// WithMetrics installs a metrics.Provider.
func WithMetrics(p metrics.Provider) Option {
	return func(c *Config) {
		if p == nil {
			panic("reactor: WithMetrics requires a non-nil Provider")
		}
		c.Metrics = p
	}
}

// WithLogger installs a structured Logger.
func WithLogger(l asyncrt.Logger) Option {
	return func(c *Config) {
		if l == nil {
			panic("reactor: WithLogger requires a non-nil Logger")
		}
		c.Logger = l
	}
}

// WithMaxPollWait bounds the idle EpollWait timeout used when no timer is
// pending.
func WithMaxPollWait(millis int) Option {
	return func(c *Config) {
		if millis <= 0 {
			panic("reactor: WithMaxPollWait requires millis > 0")
		}
		c.MaxPollWaitMillis = millis
	}
}

func buildConfig(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			panic("reactor: nil Option")
		}
		opt(&cfg)
	}
	_ = validateConfig(&cfg)
	return cfg
}
