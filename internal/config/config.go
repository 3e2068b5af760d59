// Package config loads and validates the server configuration. YAML with
// ${ENV} interpolation, a defaults-first merge, and fsnotify-backed hot
// reload through the Manager.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/efikuta/youtube-knowledge-mcp/internal/budget"
	"github.com/efikuta/youtube-knowledge-mcp/internal/cache"
	"github.com/efikuta/youtube-knowledge-mcp/internal/counter"
	"github.com/efikuta/youtube-knowledge-mcp/internal/guard"
	"github.com/efikuta/youtube-knowledge-mcp/internal/observability"
	"github.com/efikuta/youtube-knowledge-mcp/internal/ratelimit"
)

// Transport selects how the MCP server speaks to clients.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// PersistenceDriver selects the durable counter store backend.
type PersistenceDriver string

const (
	PersistenceNone     PersistenceDriver = "none"
	PersistenceRedis    PersistenceDriver = "redis"
	PersistencePostgres PersistenceDriver = "postgres"
)

// Config is the complete server configuration.
type Config struct {
	Server        ServerConfig         `yaml:"server"`
	Budget        budget.Config        `yaml:"budget"`
	Cache         cache.Config         `yaml:"cache"`
	Persistence   PersistenceConfig    `yaml:"persistence"`
	Callers       guard.Config         `yaml:"callers"`
	Providers     ProvidersConfig      `yaml:"providers"`
	YouTube       YouTubeConfig        `yaml:"youtube"`
	Logging       LoggingConfig        `yaml:"logging"`
	Observability observability.Config `yaml:"observability"`
}

// ServerConfig holds transport settings.
type ServerConfig struct {
	Transport Transport `yaml:"transport"`
	// Listen is the address of the MCP endpoint for the http transport.
	Listen string `yaml:"listen"`
	// MetricsListen serves promhttp and the usage endpoints. Empty
	// disables the listener.
	MetricsListen string     `yaml:"metrics_listen"`
	Auth          AuthConfig `yaml:"auth"`
}

// AuthConfig holds caller authentication for the http transport. The stdio
// transport identifies callers by client name and needs no token.
type AuthConfig struct {
	// JWTSecret verifies HS256 service tokens; the subject claim becomes
	// the caller identity. May be a secret reference. Required for the
	// http transport, unused on stdio.
	JWTSecret string `yaml:"jwt_secret"`
}

// PersistenceConfig selects and configures the durable counter store.
type PersistenceConfig struct {
	Driver   PersistenceDriver      `yaml:"driver"`
	Redis    counter.RedisConfig    `yaml:"redis"`
	Postgres counter.PostgresConfig `yaml:"postgres"`
}

// ProvidersConfig configures the generation provider chain. A provider
// with no resolvable credential is silently left out of the chain.
type ProvidersConfig struct {
	// Window is the shared rate-window cadence for all providers.
	Window time.Duration `yaml:"window"`

	Gemini    ProviderConfig `yaml:"gemini"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Bedrock   ProviderConfig `yaml:"bedrock"`
}

// ProviderConfig overrides one provider's descriptor defaults. Zero values
// keep the built-in defaults.
type ProviderConfig struct {
	// APIKey may be a literal or a secret reference (env://, vault://).
	APIKey   string        `yaml:"api_key"`
	Priority int           `yaml:"priority"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`

	RequestLimit int64 `yaml:"request_limit"`
	SizeLimit    int64 `yaml:"size_limit"`

	// Region applies to bedrock only.
	Region string `yaml:"region"`
	// Disabled removes the provider from the chain even with a
	// credential present.
	Disabled bool `yaml:"disabled"`
}

// YouTubeConfig configures the Data API client.
type YouTubeConfig struct {
	// APIKey may be a literal or a secret reference.
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	// File enables size-rotated file output alongside stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	AddSource  bool   `yaml:"add_source"`
}

// Default returns the configuration used when no file is given. It runs a
// stdio server with an in-memory cache and no durable persistence.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:     TransportStdio,
			Listen:        ":8080",
			MetricsListen: ":9090",
		},
		Budget:      budget.DefaultConfig(),
		Cache:       cache.DefaultConfig(),
		Persistence: PersistenceConfig{Driver: PersistenceNone, Redis: counter.DefaultRedisConfig(), Postgres: counter.DefaultPostgresConfig()},
		Callers:     guard.DefaultConfig(),
		Providers: ProvidersConfig{
			Window:    ratelimit.DefaultConfig().Window,
			Gemini:    ProviderConfig{APIKey: "env://GEMINI_API_KEY"},
			OpenAI:    ProviderConfig{APIKey: "env://OPENAI_API_KEY"},
			Anthropic: ProviderConfig{APIKey: "env://ANTHROPIC_API_KEY"},
			Bedrock:   ProviderConfig{Region: "us-east-1"},
		},
		YouTube: YouTubeConfig{APIKey: "env://YOUTUBE_API_KEY"},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			MaxSizeMB: 100,
		},
		Observability: observability.DefaultConfig(),
	}
}

// Load reads path, expands ${ENV} references, merges over the defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the server could not run with. Values
// with safe fallbacks (zero limits, empty TTLs) are left to the owning
// component's constructor defaults.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown server.transport %q (stdio or http)", c.Server.Transport)
	}
	if c.Server.Transport == TransportHTTP && c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required for the http transport")
	}

	if c.Budget.DailyLimit < 0 {
		return fmt.Errorf("budget.daily_limit cannot be negative")
	}
	if c.Budget.ReserveBuffer < 0 {
		return fmt.Errorf("budget.reserve_buffer cannot be negative")
	}
	if c.Budget.DailyLimit > 0 && c.Budget.ReserveBuffer >= c.Budget.DailyLimit {
		return fmt.Errorf("budget.reserve_buffer (%d) must be below budget.daily_limit (%d)",
			c.Budget.ReserveBuffer, c.Budget.DailyLimit)
	}
	if c.Budget.WarnPercent < 0 || c.Budget.WarnPercent > 100 {
		return fmt.Errorf("budget.warn_percent must be within [0, 100]")
	}
	if c.Budget.CriticalPercent < 0 || c.Budget.CriticalPercent > 100 {
		return fmt.Errorf("budget.critical_percent must be within [0, 100]")
	}

	switch c.Persistence.Driver {
	case PersistenceNone, PersistenceRedis, PersistencePostgres, "":
	default:
		return fmt.Errorf("unknown persistence.driver %q", c.Persistence.Driver)
	}

	switch c.Cache.Driver {
	case cache.DriverMemory, cache.DriverRedis, cache.DriverDual, "":
	default:
		return fmt.Errorf("unknown cache.driver %q", c.Cache.Driver)
	}

	if c.Providers.Window < 0 {
		return fmt.Errorf("providers.window cannot be negative")
	}
	for name, p := range map[string]ProviderConfig{
		"gemini":    c.Providers.Gemini,
		"openai":    c.Providers.OpenAI,
		"anthropic": c.Providers.Anthropic,
		"bedrock":   c.Providers.Bedrock,
	} {
		if p.Priority < 0 {
			return fmt.Errorf("providers.%s.priority cannot be negative", name)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("providers.%s.timeout cannot be negative", name)
		}
	}

	switch c.Logging.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("unknown logging.format %q (json or text)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}

	return nil
}
