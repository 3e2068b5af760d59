package observability

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelLogsConfig controls OTLP log export.
type OTelLogsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Protocol    string `yaml:"protocol"` // "grpc" or "http"
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// DefaultOTelLogsConfig reads log export settings from the environment.
func DefaultOTelLogsConfig() OTelLogsConfig {
	return OTelLogsConfig{
		Enabled:     os.Getenv("YTKM_OTEL_LOGS_ENABLED") == "true",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"),
		Protocol:    "grpc",
		ServiceName: "youtube-knowledge-mcp",
		Insecure:    true,
	}
}

// OTelLogsProvider wraps the OpenTelemetry logger provider.
type OTelLogsProvider struct {
	provider *sdklog.LoggerProvider
	logger   log.Logger
}

// InitOTelLogs initializes OTLP log export. Returns (nil, nil) when
// disabled.
func InitOTelLogs(ctx context.Context, cfg OTelLogsConfig) (*OTelLogsProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var exporter sdklog.Exporter
	var err error
	switch cfg.Protocol {
	case "", "grpc":
		opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		}
		exporter, err = otlploggrpc.New(ctx, opts...)
	case "http":
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exporter, err = otlploghttp.New(ctx, opts...)
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

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	global.SetLoggerProvider(provider)

	return &OTelLogsProvider{
		provider: provider,
		logger:   provider.Logger(TracerName),
	}, nil
}

// Logger returns the OTLP logger.
func (o *OTelLogsProvider) Logger() log.Logger {
	return o.logger
}

// Shutdown flushes and stops the logger provider.
func (o *OTelLogsProvider) Shutdown(ctx context.Context) error {
	if o == nil || o.provider == nil {
		return nil
	}
	return o.provider.Shutdown(ctx)
}

// OTelLogsCallback ships generation events as OTLP log records with trace
// correlation.
type OTelLogsCallback struct {
	provider *OTelLogsProvider
}

// NewOTelLogsCallback creates the callback.
func NewOTelLogsCallback(provider *OTelLogsProvider) *OTelLogsCallback {
	return &OTelLogsCallback{provider: provider}
}

// Name returns the callback name.
func (o *OTelLogsCallback) Name() string {
	return "otel_logs"
}

// LogSuccessEvent emits a success record.
func (o *OTelLogsCallback) LogSuccessEvent(ctx context.Context, event *GenerationEvent) error {
	o.emit(ctx, "generation.success", log.SeverityInfo, event, nil)
	return nil
}

// LogFailureEvent emits a failure record.
func (o *OTelLogsCallback) LogFailureEvent(ctx context.Context, event *GenerationEvent, err error) error {
	o.emit(ctx, "generation.failure", log.SeverityError, event, err)
	return nil
}

// Shutdown stops the underlying provider.
func (o *OTelLogsCallback) Shutdown(ctx context.Context) error {
	return o.provider.Shutdown(ctx)
}

func (o *OTelLogsCallback) emit(ctx context.Context, name string, severity log.Severity, event *GenerationEvent, cause error) {
	if o.provider == nil {
		return
	}

	record := log.Record{}
	record.SetTimestamp(time.Now())
	record.SetSeverity(severity)
	record.SetBody(log.StringValue(name))

	record.AddAttributes(
		log.String("gen_ai.system", event.Provider),
		log.String("gen_ai.request.model", event.Model),
		log.Int("gen_ai.usage.input_tokens", event.PromptUnits),
		log.Int("gen_ai.usage.output_tokens", event.CompletionUnits),
		log.String("request_id", event.RequestID),
		log.Int64("duration_ms", event.LatencyMs),
		log.Bool("cache_hit", event.CacheHit),
		log.Int("attempts", len(event.Attempts)),
	)
	if event.CallerID != "" {
		record.AddAttributes(log.String("caller_id", event.CallerID))
	}
	if cause != nil {
		record.AddAttributes(log.String("error.message", cause.Error()))
	}
	if event.ErrorType != "" {
		record.AddAttributes(log.String("error.type", event.ErrorType))
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		record.AddAttributes(
			log.String("trace_id", span.SpanContext().TraceID().String()),
			log.String("span_id", span.SpanContext().SpanID().String()),
		)
	}

	o.provider.Logger().Emit(ctx, record)
}
