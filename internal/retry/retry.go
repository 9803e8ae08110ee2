// Package retry runs an operation a bounded number of times with
// exponential backoff between attempts.
package retry

import (
	"context"
	stdErrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/thomas-vilte/leanreview/internal/logger"
)

// Config configures retry behavior with exponential backoff.
type Config struct {
	MaxAttempts int           // total attempts including the first one
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap for any single delay, 0 means no cap
	Multiplier  float64       // backoff growth factor, 2 when zero
	Jitter      bool          // add up to 10% random jitter
}

// DefaultConfig is used for posting comments.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Result contains information about the retry operation.
type Result struct {
	Attempts      int
	TotalDuration time.Duration
	Err           error
}

func (r Result) Success() bool {
	return r.Err == nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type afterError struct {
	err   error
	after time.Duration
}

func (e *afterError) Error() string { return e.err.Error() }
func (e *afterError) Unwrap() error { return e.err }

// After marks err as retryable no sooner than d, typically the server's
// Retry-After. The backoff delay is raised to d when shorter.
func After(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &afterError{err: err, after: d}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return stdErrors.As(err, &p)
}

// Do calls op until it succeeds, returns a permanent error, the context is
// done, or MaxAttempts attempts have failed. Result.Err is the last error.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) Result {
	return do(ctx, cfg, op, sleep)
}

type sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func do(ctx context.Context, cfg Config, op func(ctx context.Context) error, wait sleeper) Result {
	start := time.Now()
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		err := op(ctx)
		if err == nil {
			result.Err = nil
			result.TotalDuration = time.Since(start)
			if attempt > 1 {
				logger.Info(ctx, "operation succeeded after retry", "attempt", attempt)
			}
			return result
		}

		var p *permanentError
		if stdErrors.As(err, &p) {
			result.Err = p.err
			result.TotalDuration = time.Since(start)
			logger.Warn(ctx, "operation failed with a non-retryable error",
				"attempt", attempt,
				"error", p.err)
			return result
		}
		var after *afterError
		if stdErrors.As(err, &after) {
			err = after.err
		}
		result.Err = err

		if attempt == maxAttempts {
			break
		}

		if ctx.Err() != nil {
			result.Err = ctx.Err()
			break
		}

		delay := Delay(cfg, attempt-1)
		if after != nil && after.after > delay {
			delay = after.after
		}
		logger.Warn(ctx, "operation failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", err)

		if werr := wait(ctx, delay); werr != nil {
			result.Err = werr
			break
		}
	}

	result.TotalDuration = time.Since(start)
	logger.Error(ctx, "operation failed after retries", result.Err,
		"attempt", result.Attempts,
		"duration_ms", result.TotalDuration.Milliseconds())
	return result
}

// Delay returns the wait before retry number retry (0-based):
// BaseDelay * Multiplier^retry, capped at MaxDelay, with optional jitter.
func Delay(cfg Config, retry int) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := float64(cfg.BaseDelay) * math.Pow(multiplier, float64(retry))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}

	return time.Duration(delay)
}
