package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Retry parameters for Do.
const (
	DefaultMaxRetries    = 5
	DefaultBaseDelay     = 500 * time.Millisecond
	DefaultMaxRetryDelay = 8 * time.Second

	// logCadence: every Nth retry is logged to keep a saturated key from
	// flooding the log.
	logCadence = 3
)

// RetryConfig bounds the Do helper.
type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxRetryDelay time.Duration
	Logger        *zap.Logger
}

func (c *RetryConfig) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Do runs fn, retrying only on *RateLimitError with jittered exponential
// backoff: each delay is at least the signalled RetryAfter and never
// decreases until the cap. Any other error, success, or context
// cancellation ends the loop immediately.
func Do(ctx context.Context, cfg RetryConfig, key string, fn func() error) error {
	cfg.defaults()

	delay := cfg.BaseDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(withJitter(delay)):
			}
			delay *= 2
			if delay > cfg.MaxRetryDelay {
				delay = cfg.MaxRetryDelay
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return err
		}
		lastErr = err

		if rle.RetryAfter > delay {
			delay = rle.RetryAfter
			if delay > cfg.MaxRetryDelay {
				delay = cfg.MaxRetryDelay
			}
		}

		if attempt%logCadence == 0 {
			cfg.Logger.Warn("rate limited, backing off",
				zap.String("key", key),
				zap.Int("attempt", attempt+1),
				zap.Duration("retry_after", rle.RetryAfter),
				zap.Duration("next_delay", delay))
		}
	}

	return lastErr
}

// withJitter spreads a delay by up to +20%.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*0.2*float64(d))
}
