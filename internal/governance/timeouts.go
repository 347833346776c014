package governance

import (
	"context"
	"fmt"
	"time"
)

// TimeoutConfig defines deadlines for remote calls.
type TimeoutConfig struct {
	// RequestTimeout bounds a single HTTP exchange, body included.
	RequestTimeout time.Duration
	// RunTimeout bounds a whole pipeline run. Zero means no run deadline.
	RunTimeout time.Duration
}

// DefaultTimeoutConfig returns the timeouts used when none are configured.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		RequestTimeout: 30 * time.Second,
		RunTimeout:     10 * time.Minute,
	}
}

// TimeoutManager derives deadline-bound contexts.
type TimeoutManager struct {
	config TimeoutConfig
}

// NewTimeoutManager creates a timeout manager, filling a missing request
// timeout with the default.
func NewTimeoutManager(config TimeoutConfig) *TimeoutManager {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultTimeoutConfig().RequestTimeout
	}
	if config.RunTimeout < 0 {
		config.RunTimeout = 0
	}
	return &TimeoutManager{config: config}
}

// Config returns a copy of the current timeout configuration.
func (tm *TimeoutManager) Config() TimeoutConfig {
	return tm.config
}

// Validate checks a timeout configuration before it is applied.
func (c TimeoutConfig) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run timeout must not be negative")
	}
	if c.RunTimeout > 0 && c.RunTimeout < c.RequestTimeout {
		return fmt.Errorf("run timeout %s is shorter than request timeout %s", c.RunTimeout, c.RequestTimeout)
	}
	return nil
}

// WithRequestTimeout creates a context bounded by the request timeout.
func (tm *TimeoutManager) WithRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, tm.config.RequestTimeout)
}

// WithRunTimeout creates a context bounded by the run timeout, or a plain
// cancelable context when no run timeout is set.
func (tm *TimeoutManager) WithRunTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if tm.config.RunTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, tm.config.RunTimeout)
}
