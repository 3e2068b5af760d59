package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Config gathers the observability integrations.
type Config struct {
	// EnabledCallbacks lists the sinks to register: "prometheus", "s3",
	// "otel_logs", "otel_metrics".
	EnabledCallbacks []string `yaml:"enabled_callbacks"`

	Tracing     TracingConfig     `yaml:"tracing"`
	OTelLogs    OTelLogsConfig    `yaml:"otel_logs"`
	OTelMetrics OTelMetricsConfig `yaml:"otel_metrics"`
	S3          S3Config          `yaml:"s3"`
}

// DefaultConfig reads observability settings from the environment.
// Prometheus is always on; everything else is opt-in.
func DefaultConfig() Config {
	cfg := Config{
		EnabledCallbacks: []string{"prometheus"},
		Tracing:          DefaultTracingConfig(),
		OTelLogs:         DefaultOTelLogsConfig(),
		OTelMetrics:      DefaultOTelMetricsConfig(),
		S3:               DefaultS3Config(),
	}

	if callbacks := os.Getenv("YTKM_CALLBACKS"); callbacks != "" {
		cfg.EnabledCallbacks = nil
		for _, name := range strings.Split(callbacks, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.EnabledCallbacks = append(cfg.EnabledCallbacks, name)
			}
		}
	}

	return cfg
}

// Manager owns the assembled integrations and their shutdown order.
type Manager struct {
	Callbacks *CallbackManager
	Tracing   *TracerProvider
	Metrics   *OTelMetricsProvider

	logger *slog.Logger
}

// NewManager builds the configured integrations. Failures to reach external
// collectors are returned; the caller decides whether they are fatal.
func NewManager(ctx context.Context, cfg Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		Callbacks: NewCallbackManager(logger),
		logger:    logger,
	}

	tracing, err := InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	m.Tracing = tracing

	for _, name := range cfg.EnabledCallbacks {
		switch name {
		case "prometheus":
			m.Callbacks.Register(NewPrometheusCallback())
		case "s3":
			cb, err := NewS3Callback(cfg.S3)
			if err != nil {
				return nil, fmt.Errorf("init s3 callback: %w", err)
			}
			m.Callbacks.Register(cb)
		case "otel_logs":
			provider, err := InitOTelLogs(ctx, cfg.OTelLogs)
			if err != nil {
				return nil, fmt.Errorf("init otel logs: %w", err)
			}
			if provider != nil {
				m.Callbacks.Register(NewOTelLogsCallback(provider))
			}
		case "otel_metrics":
			provider, err := InitOTelMetrics(ctx, cfg.OTelMetrics)
			if err != nil {
				return nil, fmt.Errorf("init otel metrics: %w", err)
			}
			if provider != nil {
				m.Metrics = provider
				m.Callbacks.Register(NewOTelMetricsCallback(provider))
			}
		default:
			logger.Warn("unknown observability callback, skipping", "callback", name)
		}
	}

	return m, nil
}

// Shutdown flushes all integrations.
func (m *Manager) Shutdown(ctx context.Context) error {
	var first error
	if err := m.Callbacks.Shutdown(ctx); err != nil {
		first = err
	}
	if m.Tracing != nil {
		if err := m.Tracing.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
