package gcal

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/wellspring-care/teletherapy-platform/pkg/logging"
)

// RetryConfig controls the backoff schedule shared by every upstream call.
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxTotalDelay time.Duration

	// sleep and jitter are test seams. Production code leaves them nil.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxTotalDelay <= 0 {
		cfg.MaxTotalDelay = 30 * time.Second
	}
	if cfg.sleep == nil {
		cfg.sleep = sleepCtx
	}
	if cfg.jitter == nil {
		cfg.jitter = randomJitter
	}
	return cfg
}

// WithRetry runs op until it succeeds, fails with a non-retryable error, or
// exhausts the attempt budget. Backoff is BaseDelay doubled per attempt plus
// jitter bounded by BaseDelay; cumulative sleep never exceeds MaxTotalDelay.
// Rate-limited responses honor the provider's Retry-After hint when present
// and otherwise double the computed backoff.
func WithRetry[T any](ctx context.Context, logger *logging.Logger, cfg RetryConfig, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if logger == nil {
		logger = logging.Default()
	}
	cfg = cfg.withDefaults()

	var slept time.Duration
	for attempt := 1; ; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		if attempt >= cfg.MaxAttempts {
			return zero, fmt.Errorf("gcal: %s failed after %d attempts: %w", name, attempt, err)
		}

		delay := cfg.BaseDelay*(1<<(attempt-1)) + cfg.jitter(cfg.BaseDelay)
		if hint, ok := RetryAfterHint(err); ok {
			delay = hint
		} else if IsRateLimited(err) {
			delay *= 2
		}
		if slept+delay > cfg.MaxTotalDelay {
			delay = cfg.MaxTotalDelay - slept
		}
		if delay <= 0 {
			return zero, fmt.Errorf("gcal: %s exceeded retry delay budget: %w", name, err)
		}
		slept += delay

		logger.Warn("calendar call retrying",
			"operation", name,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"status", StatusCode(err),
			"error", err,
		)
		if sleepErr := cfg.sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

// Safe runs op through WithRetry and converts any final failure into the
// fallback value. It never returns an error; the failure is logged.
func Safe[T any](ctx context.Context, logger *logging.Logger, cfg RetryConfig, name string, fallback T, op func(context.Context) (T, error)) T {
	if logger == nil {
		logger = logging.Default()
	}
	out, err := WithRetry(ctx, logger, cfg, name, op)
	if err != nil {
		logger.Error("calendar call failed, using fallback", "operation", name, "error", err)
		return fallback
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
