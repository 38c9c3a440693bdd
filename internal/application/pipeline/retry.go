package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StageConfig bounds every inference call made by a stage
type StageConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultStageConfig returns the settings used when none are configured
func DefaultStageConfig() StageConfig {
	return StageConfig{
		Timeout:     30 * time.Second,
		MaxAttempts: 2,
		Backoff:     500 * time.Millisecond,
	}
}

func (c StageConfig) normalized() StageConfig {
	d := DefaultStageConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	return c
}

// callWithRetry runs fn with a per-attempt timeout and exponential backoff.
// It stops early once the parent context is done.
func callWithRetry[T any](ctx context.Context, cfg StageConfig, logger *zap.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		result, err := fn(attemptCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < cfg.MaxAttempts {
			backoff := cfg.Backoff * time.Duration(1<<uint(attempt-1))
			logger.Warn("Retrying inference call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, cfg.MaxAttempts, lastErr)
}
