// Package retry decides whether failed remote operations are retried and
// with what backoff. Client faults are never retried; transient faults
// are retried up to a per-policy bound with exponential backoff and
// jitter. Policies are pluggable per mutation type since idempotent
// status flips tolerate more retries than irreversible deletes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/serabi/organized-glitter-sub001/pkg/remote"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "og_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "og_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "og_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Common errors returned by Do.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// Policy holds the retry configuration for one mutation type.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff delay.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultPolicy returns the retry policy for idempotent mutations such as
// status flips.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DeletePolicy returns the retry policy for irreversible deletes, which
// are attempted at most once to avoid duplicate side effects.
func DeletePolicy() Policy {
	return Policy{
		MaxAttempts:       1,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RateLimitPolicy returns a policy with longer backoff for rate-limited
// operations.
func RateLimitPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ShouldRetry reports whether a failed attempt should be retried.
// Client faults are never retried regardless of attempt number.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if !remote.ClassOf(err).Transient() {
		return false
	}
	return attempt < p.MaxAttempts
}

// BackoffDelay returns the delay before the given retry attempt
// (1-based), exponential with ±20% jitter and capped at MaxBackoff.
func (p Policy) BackoffDelay(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
			break
		}
	}
	if backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
}

// Do executes fn with the policy's retry behavior. It respects context
// cancellation during backoff. The returned error is the last classified
// failure, wrapped with ErrRetryExhausted when the bound was hit.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err
		class := remote.ClassOf(err)

		if !policy.ShouldRetry(err, attempt) {
			if class.Transient() && attempt >= policy.MaxAttempts {
				break
			}
			// Client fault: surface immediately.
			return lastErr
		}

		delay := policy.BackoffDelay(attempt)
		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(delay.Seconds())

		log.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			log.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(delay):
		}
	}

	class := remote.ClassOf(lastErr)
	if policy.MaxAttempts > 1 {
		retryExhaustedTotal.WithLabelValues(string(class)).Inc()
		log.Warn().
			Str("error_class", string(class)).
			Int("max_attempts", policy.MaxAttempts).
			Msg("Retry attempts exhausted")
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, policy.MaxAttempts, lastErr)
}
