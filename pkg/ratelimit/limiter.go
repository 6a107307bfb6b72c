// Package ratelimit paces calls to the upstream market API.
//
// The Gamma API publishes no error-budget headers, so pacing is local: a
// configured minimum interval between calls (the rate hint) plus penalty
// windows applied when the upstream answers 429.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_rate_limit_waits_total",
		Help: "Total number of upstream calls delayed by the rate limiter",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pm_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limit slot",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	rateLimitPenaltiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_rate_limit_penalties_total",
		Help: "Total number of penalty windows applied after upstream 429 responses",
	})
)

// Limiter gates upstream requests. It is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	nextAllowed time.Time
	logger      zerolog.Logger

	now func() time.Time // overridable for tests
}

// New creates a limiter enforcing minInterval between upstream calls.
// A non-positive interval disables pacing; Penalize windows still apply.
func New(minInterval time.Duration, logger zerolog.Logger) *Limiter {
	return &Limiter{
		minInterval: minInterval,
		logger:      logger,
		now:         time.Now,
	}
}

// Wait blocks until the caller may issue an upstream request, honoring
// context cancellation. Each successful Wait reserves a slot, so concurrent
// callers are spaced at least minInterval apart.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()

	var wait time.Duration
	if now.Before(l.nextAllowed) {
		wait = l.nextAllowed.Sub(now)
		l.nextAllowed = l.nextAllowed.Add(l.minInterval)
	} else {
		l.nextAllowed = now.Add(l.minInterval)
	}
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	rateLimitWaitsTotal.Inc()
	rateLimitWaitSeconds.Observe(wait.Seconds())
	l.logger.Debug().Dur("wait", wait).Msg("Rate limit pacing upstream call")

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Penalize pushes the next allowed call out by at least d, typically the
// Retry-After window of an upstream 429 response.
func (l *Limiter) Penalize(d time.Duration) {
	if d <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.now().Add(d)
	if until.After(l.nextAllowed) {
		l.nextAllowed = until
	}

	rateLimitPenaltiesTotal.Inc()
	l.logger.Warn().Dur("penalty", d).Msg("Upstream rate limited - backing off")
}
