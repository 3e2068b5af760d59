// Package metrics provides provider and caller health metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Provider Window Metrics
// =============================================================================

var (
	// ProviderWindowRequests tracks requests in each provider's current minute window.
	ProviderWindowRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_window_requests",
			Help:      "Requests counted in the provider's current rate window",
		},
		[]string{"provider"},
	)

	// ProviderSkips counts providers passed over during fallback iteration.
	ProviderSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_skips_total",
			Help:      "Times a provider was skipped during fallback iteration",
		},
		[]string{"provider", "reason"}, // reason: rate_limited, unconfigured
	)

	// BackoffDelays tracks backoff sleeps between provider attempts.
	BackoffDelays = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backoff_delay_seconds",
			Help:      "Backoff delay applied between provider attempts",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 30},
		},
	)
)

// =============================================================================
// Caller Quota Metrics
// =============================================================================

var (
	// CallerDenials counts caller requests refused by the quota guard.
	CallerDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caller_denials_total",
			Help:      "Total caller requests refused by the quota guard",
		},
		[]string{"scope"}, // scope: hourly, daily, rate
	)

	// ActiveCallers tracks callers seen in the last tracking window.
	ActiveCallers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_callers",
			Help:      "Callers with activity inside the tracking window",
		},
	)
)

// =============================================================================
// YouTube API Metrics
// =============================================================================

var (
	// YouTubeCalls counts upstream Data API calls by endpoint and status.
	YouTubeCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "youtube_calls_total",
			Help:      "Total YouTube Data API calls",
		},
		[]string{"endpoint", "status"},
	)

	// YouTubeUnitsSpent counts quota units spent per endpoint.
	YouTubeUnitsSpent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "youtube_units_spent_total",
			Help:      "Total quota units spent per endpoint",
		},
		[]string{"endpoint"},
	)
)
