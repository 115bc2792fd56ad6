package dialogue

import (
	"log/slog"
	"time"
)

// Default timings.
const (
	DefaultRestartDelay = 1000 * time.Millisecond
	DefaultStopBackoff  = 500 * time.Millisecond
	DefaultBusyBackoff  = 1000 * time.Millisecond
)

// Config holds orchestrator timings.
type Config struct {
	// RestartDelay is how long to wait before listening again after a
	// capture error.
	RestartDelay time.Duration

	// StopBackoff is the retry delay when a start is refused because a
	// stop is still finishing.
	StopBackoff time.Duration

	// BusyBackoff is the retry delay when a start is refused because a
	// session is already active.
	BusyBackoff time.Duration

	Logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Config)

// WithRestartDelay sets the delay before listening again after an error.
func WithRestartDelay(d time.Duration) Option {
	return func(c *Config) { c.RestartDelay = d }
}

// WithBackoff sets the start retry delays.
func WithBackoff(stop, busy time.Duration) Option {
	return func(c *Config) {
		c.StopBackoff = stop
		c.BusyBackoff = busy
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RestartDelay: DefaultRestartDelay,
		StopBackoff:  DefaultStopBackoff,
		BusyBackoff:  DefaultBusyBackoff,
		Logger:       slog.Default(),
	}
}
