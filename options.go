package ytkmcp

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/efikuta/youtube-knowledge-mcp/internal/guard"
	"github.com/efikuta/youtube-knowledge-mcp/internal/observability"
	"github.com/efikuta/youtube-knowledge-mcp/internal/ratelimit"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/provider"
)

// Strategy computes the backoff delay before the next provider attempt.
// attempt is the number of failed attempts so far in this request, starting
// at 1 for the first failure.
type Strategy func(attempt int) time.Duration

// DefaultStrategy doubles from one second per failed attempt, capped at
// thirty seconds.
func DefaultStrategy(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := time.Second * time.Duration(1<<(attempt-1))
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

// NoBackoff sleeps for zero time between attempts. Intended for tests.
func NoBackoff(int) time.Duration { return 0 }

type providerSetup struct {
	descriptor provider.Descriptor
	instance   provider.Provider
	config     *provider.Config
}

// ClientConfig holds broker configuration built by Option functions.
type ClientConfig struct {
	// Providers to register, in the order the options appeared. Priority
	// ordering comes from the descriptors, not from option order.
	Providers []providerSetup

	// Factories for constructing adapters from ProviderConfig, keyed by
	// descriptor name. Pre-populated with the built-in fleet.
	Factories map[string]provider.Factory

	// Cache for generation results. Nil disables caching.
	Cache Cache

	// Callbacks receives success/failure telemetry. Nil creates an empty
	// manager.
	Callbacks *observability.CallbackManager

	// Tracer for generation spans. Nil uses a no-op tracer.
	Tracer trace.Tracer

	// TrackerConfig controls the provider rate windows.
	TrackerConfig ratelimit.Config

	// GuardConfig controls per-caller ceilings. GuardDisabled skips caller
	// admission entirely.
	GuardConfig   guard.Config
	GuardDisabled bool

	// Backoff strategy between failed attempts.
	Backoff Strategy

	// HTTPClient overrides the transport used for provider calls.
	HTTPClient *http.Client

	// DefaultAttemptTimeout applies when a descriptor declares none.
	DefaultAttemptTimeout time.Duration

	Logger *slog.Logger
}

// Option configures the broker client.
type Option func(*ClientConfig)

func defaultConfig() *ClientConfig {
	return &ClientConfig{
		Factories:             make(map[string]provider.Factory),
		TrackerConfig:         ratelimit.DefaultConfig(),
		GuardConfig:           guard.DefaultConfig(),
		Backoff:               DefaultStrategy,
		DefaultAttemptTimeout: 60 * time.Second,
		Logger:                slog.Default(),
	}
}

// WithProviderInstance registers a pre-built adapter under the given
// descriptor.
func WithProviderInstance(desc Descriptor, prov Provider) Option {
	return func(c *ClientConfig) {
		c.Providers = append(c.Providers, providerSetup{descriptor: desc, instance: prov})
	}
}

// WithProviderConfig registers a provider built from configuration. The
// adapter factory is looked up by the descriptor name.
func WithProviderConfig(desc Descriptor, cfg ProviderConfig) Option {
	return func(c *ClientConfig) {
		if cfg.Name == "" {
			cfg.Name = desc.Name
		}
		if cfg.Model == "" {
			cfg.Model = desc.DefaultModel
		}
		c.Providers = append(c.Providers, providerSetup{descriptor: desc, config: &cfg})
	}
}

// WithProviderFactory registers a custom adapter factory for a provider
// name, replacing any built-in.
func WithProviderFactory(name string, factory provider.Factory) Option {
	return func(c *ClientConfig) {
		c.Factories[name] = factory
	}
}

// WithCache enables response caching for generation results.
func WithCache(cache Cache) Option {
	return func(c *ClientConfig) {
		c.Cache = cache
	}
}

// WithCallbacks sets the telemetry callback manager.
func WithCallbacks(manager *observability.CallbackManager) Option {
	return func(c *ClientConfig) {
		c.Callbacks = manager
	}
}

// WithTracer sets the tracer for generation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *ClientConfig) {
		c.Tracer = tracer
	}
}

// WithBackoffStrategy replaces the delay schedule between failed attempts.
func WithBackoffStrategy(strategy Strategy) Option {
	return func(c *ClientConfig) {
		if strategy != nil {
			c.Backoff = strategy
		}
	}
}

// WithTrackerConfig overrides the provider rate-window configuration.
func WithTrackerConfig(cfg ratelimit.Config) Option {
	return func(c *ClientConfig) {
		c.TrackerConfig = cfg
	}
}

// WithGuardConfig overrides the per-caller ceiling configuration.
func WithGuardConfig(cfg guard.Config) Option {
	return func(c *ClientConfig) {
		c.GuardConfig = cfg
	}
}

// WithoutGuard disables per-caller admission. Every caller is admitted;
// provider rate windows and the budget ledger still apply.
func WithoutGuard() Option {
	return func(c *ClientConfig) {
		c.GuardDisabled = true
	}
}

// WithHTTPClient overrides the HTTP client used for provider calls. The
// client's own timeout should stay zero; per-attempt deadlines come from
// provider descriptors.
func WithHTTPClient(client *http.Client) Option {
	return func(c *ClientConfig) {
		c.HTTPClient = client
	}
}

// WithDefaultAttemptTimeout sets the per-attempt deadline used when a
// descriptor declares none.
func WithDefaultAttemptTimeout(d time.Duration) Option {
	return func(c *ClientConfig) {
		if d > 0 {
			c.DefaultAttemptTimeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}
