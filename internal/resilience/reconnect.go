package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ReconnectConfig holds configuration for connection establishment retries
type ReconnectConfig struct {
	MaxAttempts int
	Backoff     time.Duration
	Multiplier  float64
	MaxBackoff  time.Duration
}

// DefaultReconnectConfig returns a default reconnection configuration
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// Reconnect calls connect until it succeeds, attempts run out, or ctx is done
func Reconnect(ctx context.Context, name string, connect func(ctx context.Context) error, cfg ReconnectConfig) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	backoff := cfg.Backoff

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = connect(ctx)
		if lastErr == nil {
			if attempt > 0 {
				log.Info().Str("component", name).Int("attempts", attempt+1).Msg("Reconnected")
			}
			return nil
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		log.Warn().
			Err(lastErr).
			Str("component", name).
			Int("attempt", attempt+1).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("retry_in", backoff).
			Msg("Connection attempt failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return fmt.Errorf("%s: failed to connect after %d attempts: %w", name, cfg.MaxAttempts, lastErr)
}
