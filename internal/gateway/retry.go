package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig configures exponential backoff for a single venue call.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig mirrors the transient-I/O policy: bounded attempts,
// increasing delays, never fails the cycle on its own.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
	}
}

// IsRetryable classifies an error as transient venue/network trouble,
// as opposed to a rejection that retrying cannot fix.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many requests",
		"rate limit",
		"-1001", // binance internal error
		"-1021", // binance recvWindow
	} {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

// Operation is a single venue call attempted under WithRetry.
type Operation func() error

// WithRetry runs operation under exponential backoff, honoring ctx
// cancellation and giving up immediately on a non-retryable error.
func WithRetry(ctx context.Context, log zerolog.Logger, cfg RetryConfig, operation Operation) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("gateway: retry cancelled: %w", ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				log.Info().Int("attempt", attempt+1).Msg("venue call succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("venue call failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("gateway: retry cancelled during backoff: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return fmt.Errorf("gateway: operation failed after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}
