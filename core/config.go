package core

import (
	"fmt"
	"time"
)

// Config holds the construction-time configuration for a Sheriff, built up
// via functional options following the teacher pack's three-layer
// Config/Option convention (defaults, then options applied in order).
// Unlike the teacher's HTTP-service config, a Sheriff has no network
// listener of its own — its surface is the Bus and the event registry —
// so this is scoped to exactly what reconciliation and the script engine
// need.
type Config struct {
	// Name is this sheriff's display name, carried on outbound orders
	// frames (wire.OrdersFrame.SheriffName).
	Name string

	// IsObserver puts the sheriff in read-only observer mode (spec.md
	// §4.3): mutators are rejected, and inbound orders frames are
	// processed to shadow another sheriff's desired state. An observer
	// replays another sheriff's recordings, so the stale-info-frame
	// cutoff below does not apply to it.
	IsObserver bool

	// OrdersInterval is how often SendOrders is invoked by Run's ticker.
	// spec.md §5: "typically 1s".
	OrdersInterval time.Duration

	// ObserverStaleThreshold bounds how old (by utime) an info frame may
	// be before a non-observer sheriff drops it (spec.md §9, preserved
	// from the original's `not self.is_observer` guard).
	ObserverStaleThreshold time.Duration

	// ScriptActionRateLimit bounds how frequently the script engine may
	// advance past a wait-status action once it resolves (spec.md §4.4:
	// "no more than ~10 actions/second").
	ScriptActionRateLimit time.Duration

	Bus    Bus
	Logger Logger
	Clock  Clock

	Tracer ReconcileTracer
}

// Option configures a Config. Returns an error so validating options
// (e.g. a bad interval) fail the whole construction atomically.
type Option func(*Config) error

func defaultConfig() *Config {
	return &Config{
		Name:                   "sheriff",
		OrdersInterval:         time.Second,
		ObserverStaleThreshold: 30 * time.Second,
		ScriptActionRateLimit:  100 * time.Millisecond,
		Logger:                 NoOpLogger{},
		Clock:                  SystemClock{},
		Tracer:                 noopTracer{},
	}
}

// WithName sets the sheriff's display name.
func WithName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return newError("WithName", "config", "", fmt.Errorf("%w: name must not be empty", ErrInvalidConfiguration))
		}
		c.Name = name
		return nil
	}
}

// WithObserverMode puts the sheriff in observer mode (spec.md §4.3).
func WithObserverMode(enabled bool) Option {
	return func(c *Config) error {
		c.IsObserver = enabled
		return nil
	}
}

// WithOrdersInterval sets the periodic orders-broadcast interval.
func WithOrdersInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return newError("WithOrdersInterval", "config", "", fmt.Errorf("%w: interval must be positive", ErrInvalidConfiguration))
		}
		c.OrdersInterval = d
		return nil
	}
}

// WithObserverStaleThreshold overrides the 30s default from spec.md §4.3.
func WithObserverStaleThreshold(d time.Duration) Option {
	return func(c *Config) error {
		c.ObserverStaleThreshold = d
		return nil
	}
}

// WithScriptActionRateLimit overrides the 100ms default from spec.md §4.4.
func WithScriptActionRateLimit(d time.Duration) Option {
	return func(c *Config) error {
		c.ScriptActionRateLimit = d
		return nil
	}
}

// WithBus sets the pub/sub transport.
func WithBus(bus Bus) Option {
	return func(c *Config) error {
		c.Bus = bus
		return nil
	}
}

// WithLogger sets the logger, tagging a ComponentAwareLogger with the
// "core/sheriff" component the way the teacher's SetLogger methods do.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			c.Logger = NoOpLogger{}
			return nil
		}
		if cal, ok := logger.(ComponentAwareLogger); ok {
			c.Logger = cal.WithComponent("core/sheriff")
		} else {
			c.Logger = logger
		}
		return nil
	}
}

// WithClock overrides the Clock, for deterministic tests.
func WithClock(clock Clock) Option {
	return func(c *Config) error {
		if clock == nil {
			return newError("WithClock", "config", "", fmt.Errorf("%w: clock must not be nil", ErrInvalidConfiguration))
		}
		c.Clock = clock
		return nil
	}
}

// WithTracer installs a ReconcileTracer (see telemetry package for the
// OpenTelemetry-backed implementation).
func WithTracer(tracer ReconcileTracer) Option {
	return func(c *Config) error {
		if tracer == nil {
			c.Tracer = noopTracer{}
			return nil
		}
		c.Tracer = tracer
		return nil
	}
}

func newConfig(opts ...Option) (*Config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Bus == nil {
		return nil, newError("NewSheriff", "config", "", fmt.Errorf("%w: a Bus is required", ErrInvalidConfiguration))
	}
	return cfg, nil
}
