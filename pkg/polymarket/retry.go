package polymarket

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_retries_total",
		Help: "Total number of retried upstream attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pm_retry_backoff_seconds",
		Help:    "Backoff delay applied between retry attempts",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_retry_exhausted_total",
		Help: "Total number of operations that exhausted all retry attempts",
	}, []string{"error_class"})
)

// RetryPolicy controls retry behavior for upstream calls.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the backoff before the first retry; it doubles on each
	// subsequent retry up to MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// JitterFraction adds a random delay in [0, JitterFraction*delay) to
	// each backoff so synchronized clients do not retry in lockstep.
	JitterFraction float64
}

// DefaultRetryPolicy returns the standard policy: three attempts with
// exponential backoff starting at 500ms, capped at 10s, with 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		JitterFraction: 0.2,
	}
}

// backoff computes the delay before retry number n (1-based).
func (p RetryPolicy) backoff(n int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.JitterFraction > 0 {
		delay += time.Duration(rand.Float64() * p.JitterFraction * float64(delay))
	}
	return delay
}

// retryWithBackoff runs fn up to policy.MaxAttempts times, sleeping between
// attempts. Non-retryable errors abort immediately; context cancellation
// during a backoff returns ErrContextCancelled. When all attempts fail the
// last error is wrapped in ErrRetryExhausted.
func retryWithBackoff(ctx context.Context, logger zerolog.Logger, policy RetryPolicy, fn func() error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Upstream call succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		class := errorClass(err)
		delay := policy.backoff(attempt)

		retriesTotal.WithLabelValues(class).Inc()
		retryBackoffSeconds.Observe(delay.Seconds())
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Dur("backoff", delay).
			Msg("Upstream call failed - retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(errorClass(lastErr)).Inc()
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, policy.MaxAttempts, lastErr)
}
