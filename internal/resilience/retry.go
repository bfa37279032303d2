package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts       int           // Total attempts including the first
	InitialBackoff    time.Duration // Wait before the second attempt
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            bool // Adds up to 25% random jitter
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryOnce allows exactly one retry after the first attempt
func RetryOnce(backoff time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    backoff,
		MaxBackoff:        backoff,
		BackoffMultiplier: 1,
	}
}

// Classifier decides whether an error is worth another attempt
type Classifier func(error) bool

// Retry calls fn until it succeeds, the classifier rejects the error,
// attempts run out, or ctx is done. The last error is returned.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error, retryable Classifier) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		wait := CalculateBackoff(attempt, cfg.InitialBackoff, cfg.MaxBackoff, cfg.BackoffMultiplier)
		if cfg.Jitter && wait > 0 {
			wait += time.Duration(rand.Int63n(int64(wait)/4 + 1))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// CalculateBackoff returns the wait before attempt+1
func CalculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if multiplier <= 0 {
		multiplier = 1
	}
	backoff := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if max > 0 && backoff > max {
		return max
	}
	return backoff
}
