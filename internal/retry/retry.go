// Package retry implements the bounded "slow instantiation" backoff used
// when a queue or container was just created and may not yet be usable.
package retry

import (
	"context"
	"time"

	"pkt.systems/pslog"

	"github.com/ischyrus/lokad-cloud-storage/internal/clock"
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultConfig returns the bounded attempt/backoff schedule used for
// create-then-use races (queue enqueue after create-queue, blob upload after
// create-container).
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2.0,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	return c
}

// IsTransient reports whether err should be retried. It is supplied by the
// caller so this package stays decoupled from the gateway error types.
type IsTransient func(err error) bool

// Do runs fn, retrying according to cfg whenever isTransient(err) is true.
// Errors that are not transient, or that persist past the last attempt,
// propagate to the caller unchanged.
func Do(ctx context.Context, clk clock.Clock, logger pslog.Logger, cfg Config, op string, isTransient IsTransient, fn func(context.Context) error) error {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if clk == nil {
		clk = clock.Real{}
	}

	delay := cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if isTransient == nil || !isTransient(err) || attempt == cfg.MaxAttempts {
			return err
		}
		logger.Warn("retry transient error",
			"operation", op,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			clk.Sleep(delay)
			next := time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
				next = cfg.MaxDelay
			}
			delay = next
		}
	}
	return lastErr
}
