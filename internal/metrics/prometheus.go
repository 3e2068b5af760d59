// Package metrics provides Prometheus metrics for the knowledge server.
// It tracks generation requests, quota consumption, cache effectiveness,
// and per-provider health.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "ytkmcp"
)

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
// The upper tail covers the 120s ceiling slow providers are allowed.
var LatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	15.0, 30.0, 60.0, 90.0, 120.0,
}

// =============================================================================
// Generation Metrics
// =============================================================================

var (
	// GenerationRequests counts generation requests by provider, model, and status.
	GenerationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	// GenerationFailures counts failed generation attempts by error type.
	GenerationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Total failed generation attempts by error type",
		},
		[]string{"provider", "error_type"},
	)

	// GenerationLatency tracks provider call latency.
	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider", "model"},
	)

	// GenerationUnits counts token usage by direction.
	GenerationUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_units_total",
			Help:      "Total generation units (tokens) by direction",
		},
		[]string{"provider", "model", "direction"}, // direction: prompt, completion
	)

	// FallbackDepth tracks how many providers a request walked before success.
	FallbackDepth = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fallback_depth",
			Help:      "Number of provider attempts before a request succeeded",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"outcome"}, // outcome: success, exhausted
	)
)

// RecordGeneration records metrics for a completed provider call.
func RecordGeneration(provider, model string, statusCode int, latency time.Duration) {
	status := strconv.Itoa(statusCode)
	model = sanitizeModelLabel(model)
	GenerationRequests.WithLabelValues(provider, model, status).Inc()
	GenerationLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
}

// RecordGenerationUnits records token usage for a successful call.
func RecordGenerationUnits(provider, model string, promptUnits, completionUnits int) {
	model = sanitizeModelLabel(model)
	if promptUnits > 0 {
		GenerationUnits.WithLabelValues(provider, model, "prompt").Add(float64(promptUnits))
	}
	if completionUnits > 0 {
		GenerationUnits.WithLabelValues(provider, model, "completion").Add(float64(completionUnits))
	}
}

// RecordGenerationFailure records a failed provider attempt.
func RecordGenerationFailure(provider, errorType string) {
	GenerationFailures.WithLabelValues(provider, errorType).Inc()
}

// sanitizeModelLabel bounds label cardinality: model names arrive from
// configuration and provider responses, not user input, but version suffixes
// after "@" would still multiply series.
func sanitizeModelLabel(model string) string {
	if model == "" {
		return "unknown"
	}
	if idx := strings.Index(model, "@"); idx > 0 {
		return model[:idx]
	}
	return model
}
