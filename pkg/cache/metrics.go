package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend (memory, redis).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_hits_total",
			Help: "Total number of market cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses by backend.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_misses_total",
			Help: "Total number of market cache misses",
		},
		[]string{"backend"},
	)

	// CacheEvictions tracks entries evicted to honor the entry bound.
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pm_cache_evictions_total",
			Help: "Total number of cache entries evicted by the entry bound",
		},
	)

	// CacheEntries tracks the current number of entries by backend.
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pm_cache_entries",
			Help: "Current number of cache entries",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks backend operation failures.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"},
	)
)
