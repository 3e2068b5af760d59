package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/efikuta/youtube-knowledge-mcp/internal/metrics"
	ytkerrors "github.com/efikuta/youtube-knowledge-mcp/pkg/errors"
)

// PrometheusCallback feeds generation events into the Prometheus registry.
// Per-attempt provider metrics are recorded by the broker at call time; this
// callback covers the request-level view: outcomes, units, and fallback
// depth.
type PrometheusCallback struct{}

// NewPrometheusCallback creates a new Prometheus callback.
func NewPrometheusCallback() *PrometheusCallback {
	return &PrometheusCallback{}
}

// Name returns the callback name.
func (p *PrometheusCallback) Name() string {
	return "prometheus"
}

// LogSuccessEvent records metrics for a served request.
func (p *PrometheusCallback) LogSuccessEvent(ctx context.Context, event *GenerationEvent) error {
	if event.CacheHit {
		// Cache lookups are counted at the cache layer; nothing to add here.
		return nil
	}

	latency := time.Duration(event.LatencyMs) * time.Millisecond
	metrics.RecordGeneration(event.Provider, event.Model, http.StatusOK, latency)
	metrics.RecordGenerationUnits(event.Provider, event.Model, event.PromptUnits, event.CompletionUnits)
	metrics.FallbackDepth.WithLabelValues("success").Observe(float64(attemptedCount(event)))
	return nil
}

// LogFailureEvent records metrics for an exhausted or aborted request.
func (p *PrometheusCallback) LogFailureEvent(ctx context.Context, event *GenerationEvent, cause error) error {
	errorType := event.ErrorType
	if errorType == "" {
		errorType = ytkerrors.TypeInternal
	}
	metrics.RecordGenerationFailure(event.Provider, errorType)
	metrics.FallbackDepth.WithLabelValues("exhausted").Observe(float64(attemptedCount(event)))
	return nil
}

// Shutdown is a no-op; the registry lives for the process.
func (p *PrometheusCallback) Shutdown(ctx context.Context) error {
	return nil
}

func attemptedCount(event *GenerationEvent) int {
	n := 0
	for _, a := range event.Attempts {
		if !a.Skipped {
			n++
		}
	}
	if n == 0 {
		n = 1
	}
	return n
}
