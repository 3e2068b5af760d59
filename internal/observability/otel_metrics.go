package observability

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// OTelMetricsConfig controls OTLP metric export. Prometheus stays the
// primary metrics surface; OTLP export exists for deployments that want the
// same numbers pushed to a collector.
type OTelMetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Endpoint       string        `yaml:"endpoint"`
	Protocol       string        `yaml:"protocol"` // "grpc" or "http"
	ServiceName    string        `yaml:"service_name"`
	Insecure       bool          `yaml:"insecure"`
	ExportInterval time.Duration `yaml:"export_interval"`
}

// DefaultOTelMetricsConfig reads metric export settings from the
// environment.
func DefaultOTelMetricsConfig() OTelMetricsConfig {
	return OTelMetricsConfig{
		Enabled:        os.Getenv("YTKM_OTEL_METRICS_ENABLED") == "true",
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
		Protocol:       "grpc",
		ServiceName:    "youtube-knowledge-mcp",
		Insecure:       true,
		ExportInterval: 60 * time.Second,
	}
}

// QuotaSnapshotFunc reports the ledger's current state for observable
// gauges.
type QuotaSnapshotFunc func() (used, remaining int64, percent float64)

// OTelMetricsProvider wraps the OpenTelemetry meter provider and the
// instruments it serves.
type OTelMetricsProvider struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	operationDuration metric.Float64Histogram
	tokenUsage        metric.Int64Counter
	requestCount      metric.Int64Counter
	errorCount        metric.Int64Counter
}

// InitOTelMetrics initializes OTLP metric export. Returns (nil, nil) when
// disabled.
func InitOTelMetrics(ctx context.Context, cfg OTelMetricsConfig) (*OTelMetricsProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.ExportInterval <= 0 {
		cfg.ExportInterval = 60 * time.Second
	}

	var exporter sdkmetric.Exporter
	var err error
	switch cfg.Protocol {
	case "", "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	case "http":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown otlp protocol %q", cfg.Protocol)
	}
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.ExportInterval)),
		),
	)
	otel.SetMeterProvider(provider)

	omp := &OTelMetricsProvider{
		provider: provider,
		meter:    provider.Meter(TracerName),
	}
	if err := omp.initInstruments(); err != nil {
		return nil, err
	}
	return omp, nil
}

func (o *OTelMetricsProvider) initInstruments() error {
	var err error

	o.operationDuration, err = o.meter.Float64Histogram(
		"gen_ai.client.operation.duration",
		metric.WithDescription("Duration of generation operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.tokenUsage, err = o.meter.Int64Counter(
		"gen_ai.client.token.usage",
		metric.WithDescription("Tokens consumed by generation operations"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return err
	}

	o.requestCount, err = o.meter.Int64Counter(
		"ytkm.generation.requests",
		metric.WithDescription("Brokered generation requests"),
	)
	if err != nil {
		return err
	}

	o.errorCount, err = o.meter.Int64Counter(
		"ytkm.generation.errors",
		metric.WithDescription("Failed generation requests"),
	)
	return err
}

// RegisterQuotaObserver exports the daily ledger state as observable
// gauges, sampled at each collection.
func (o *OTelMetricsProvider) RegisterQuotaObserver(snapshot QuotaSnapshotFunc) error {
	usedGauge, err := o.meter.Int64ObservableGauge(
		"ytkm.quota.used_units",
		metric.WithDescription("YouTube API units spent in the current window"),
	)
	if err != nil {
		return err
	}
	remainingGauge, err := o.meter.Int64ObservableGauge(
		"ytkm.quota.remaining_units",
		metric.WithDescription("YouTube API units still admissible"),
	)
	if err != nil {
		return err
	}
	percentGauge, err := o.meter.Float64ObservableGauge(
		"ytkm.quota.usage_percent",
		metric.WithDescription("Share of the daily YouTube quota spent"),
	)
	if err != nil {
		return err
	}

	_, err = o.meter.RegisterCallback(
		func(_ context.Context, obs metric.Observer) error {
			used, remaining, percent := snapshot()
			obs.ObserveInt64(usedGauge, used)
			obs.ObserveInt64(remainingGauge, remaining)
			obs.ObserveFloat64(percentGauge, percent)
			return nil
		},
		usedGauge, remainingGauge, percentGauge,
	)
	return err
}

// Shutdown flushes and stops the meter provider.
func (o *OTelMetricsProvider) Shutdown(ctx context.Context) error {
	if o == nil || o.provider == nil {
		return nil
	}
	return o.provider.Shutdown(ctx)
}

// OTelMetricsCallback delivers generation events to the OTLP instruments.
type OTelMetricsCallback struct {
	provider *OTelMetricsProvider
}

// NewOTelMetricsCallback creates the callback.
func NewOTelMetricsCallback(provider *OTelMetricsProvider) *OTelMetricsCallback {
	return &OTelMetricsCallback{provider: provider}
}

// Name returns the callback name.
func (o *OTelMetricsCallback) Name() string {
	return "otel_metrics"
}

// LogSuccessEvent records duration and token usage.
func (o *OTelMetricsCallback) LogSuccessEvent(ctx context.Context, event *GenerationEvent) error {
	if o.provider == nil {
		return nil
	}

	attrs := metric.WithAttributes(
		attribute.String("gen_ai.system", event.Provider),
		attribute.String("gen_ai.request.model", event.Model),
	)
	o.provider.requestCount.Add(ctx, 1, attrs)
	o.provider.operationDuration.Record(ctx, float64(event.LatencyMs)/1000.0, attrs)

	if event.CacheHit {
		return nil
	}
	o.provider.tokenUsage.Add(ctx, int64(event.PromptUnits), metric.WithAttributes(
		attribute.String("gen_ai.system", event.Provider),
		attribute.String("gen_ai.token.type", "input"),
	))
	o.provider.tokenUsage.Add(ctx, int64(event.CompletionUnits), metric.WithAttributes(
		attribute.String("gen_ai.system", event.Provider),
		attribute.String("gen_ai.token.type", "output"),
	))
	return nil
}

// LogFailureEvent records the error count.
func (o *OTelMetricsCallback) LogFailureEvent(ctx context.Context, event *GenerationEvent, err error) error {
	if o.provider == nil {
		return nil
	}
	o.provider.errorCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gen_ai.system", event.Provider),
		attribute.String("error.type", event.ErrorType),
	))
	return nil
}

// Shutdown stops the underlying provider.
func (o *OTelMetricsCallback) Shutdown(ctx context.Context) error {
	return o.provider.Shutdown(ctx)
}
