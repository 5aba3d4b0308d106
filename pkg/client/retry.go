package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pullpush_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pullpush_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pullpush_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the maximum number of attempts (including the first).
	MaxRetries int

	// Backoff is the backoff unit. The wait before attempt n+1 is
	// Backoff * n (linear, not exponential). The archive's pacing is
	// calibrated against its observed limits; do not change the curve.
	Backoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		Backoff:    3 * time.Second,
	}
}

// retryWithBackoff runs fn up to cfg.MaxRetries times with linear backoff.
// Non-retryable errors (client, decode) return immediately without spending
// an attempt's backoff. Exhaustion wraps ErrRetryExhausted around the last
// underlying cause.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		class := ClassOf(err)
		if !shouldRetry(class) {
			return err
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		backoff := cfg.Backoff * time.Duration(attempt)
		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(backoff.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Int("max_retries", cfg.MaxRetries).
			Dur("backoff", backoff).
			Msg("Request failed - retrying after backoff")

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-t.C:
		}
	}

	class := ClassOf(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Error().
		Err(lastErr).
		Str("error_class", string(class)).
		Int("max_retries", cfg.MaxRetries).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, cfg.MaxRetries, lastErr)
}
