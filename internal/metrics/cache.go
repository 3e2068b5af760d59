// Package metrics provides cache-related Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Response Cache Metrics
// =============================================================================

var (
	// CacheHits counts fresh cache hits by category.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total fresh cache hits",
		},
		[]string{"category"},
	)

	// CacheMisses counts cache misses by category.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses",
		},
		[]string{"category"},
	)

	// CacheStaleServes counts expired payloads served during degradation.
	CacheStaleServes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stale_serves_total",
			Help:      "Total expired payloads served while degraded",
		},
		[]string{"category"},
	)

	// CacheEvictions counts entries reclaimed by sweep or capacity pressure.
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total cache entries evicted",
		},
	)

	// CacheEntries tracks the live entry count of the in-process tier.
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Live entries in the in-process cache tier",
		},
	)
)

// RecordCacheLookup records the outcome of a cache read.
func RecordCacheLookup(category string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(category).Inc()
	} else {
		CacheMisses.WithLabelValues(category).Inc()
	}
}
