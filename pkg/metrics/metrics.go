// Package metrics exposes the Prometheus metrics of the server. All metrics
// are defined in their respective packages (polymarket, cache, ratelimit,
// mcp) to maintain modularity and avoid circular dependencies.
//
// This package provides the optional scrape endpoint and documents the
// available metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the Prometheus registry used by the server. All metrics are
// automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/polymarket):
//   - pm_requests_total{endpoint, status} (Counter): Upstream requests by endpoint and outcome
//   - pm_request_duration_seconds{endpoint} (Histogram): Upstream request duration including retries
//   - pm_upstream_errors_total{error_class} (Counter): Failed operations by error class
//
// Retry Metrics (pkg/polymarket):
//   - pm_retries_total{error_class} (Counter): Retried attempts by error class
//   - pm_retry_backoff_seconds (Histogram): Backoff delay between attempts
//   - pm_retry_exhausted_total{error_class} (Counter): Operations that exhausted all attempts
//
// Cache Metrics (pkg/cache):
//   - pm_cache_hits_total{backend} (Counter): Cache hits by backend
//   - pm_cache_misses_total{backend} (Counter): Cache misses by backend
//   - pm_cache_evictions_total (Counter): Entries evicted by the memory bound
//   - pm_cache_entries{backend} (Gauge): Current entry count
//   - pm_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pm_rate_limit_waits_total (Counter): Calls delayed by pacing
//   - pm_rate_limit_wait_seconds (Histogram): Time spent waiting for a slot
//   - pm_rate_limit_penalties_total (Counter): Penalty windows after upstream 429s
//
// Protocol Metrics (pkg/mcp):
//   - pm_rpc_requests_total{method, outcome} (Counter): Handled requests by method
//   - pm_rpc_duration_seconds{method} (Histogram): Request handling duration
//
// Example Prometheus Queries:
//
//	# Cache Hit Rate
//	sum(rate(pm_cache_hits_total[5m])) /
//	(sum(rate(pm_cache_hits_total[5m])) + sum(rate(pm_cache_misses_total[5m])))
//
//	# Upstream Error Rate
//	rate(pm_upstream_errors_total[5m])
//
//	# P95 Upstream Latency
//	histogram_quantile(0.95, rate(pm_request_duration_seconds_bucket[5m]))

// Serve starts the /metrics scrape endpoint on addr and blocks until ctx is
// cancelled. The protocol itself runs on stdio, so the listener is the only
// HTTP surface of the process.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
