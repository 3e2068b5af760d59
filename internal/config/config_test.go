package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efikuta/youtube-knowledge-mcp/internal/cache"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, TransportStdio, cfg.Server.Transport)
	assert.EqualValues(t, 8000, cfg.Budget.DailyLimit)
	assert.EqualValues(t, 1000, cfg.Budget.ReserveBuffer)
	assert.Equal(t, PersistenceNone, cfg.Persistence.Driver)
	assert.Equal(t, time.Hour, cfg.Providers.Window)
	assert.Equal(t, "env://GEMINI_API_KEY", cfg.Providers.Gemini.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
budget:
  daily_limit: 10000
cache:
  driver: memory
  ttl:
    search: 45m
providers:
  anthropic:
    priority: 1
    timeout: 90s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.EqualValues(t, 10000, cfg.Budget.DailyLimit)
	// Untouched fields keep their defaults.
	assert.EqualValues(t, 1000, cfg.Budget.ReserveBuffer)
	assert.Equal(t, 45*time.Minute, cfg.Cache.TTL.Search)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL.Transcripts)
	assert.Equal(t, 1, cfg.Providers.Anthropic.Priority)
	assert.Equal(t, 90*time.Second, cfg.Providers.Anthropic.Timeout)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_YT_KEY", "expanded-key")
	path := writeConfig(t, `
youtube:
  api_key: ${TEST_YT_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-key", cfg.YouTube.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Server.Transport = "grpc" },
			wantErr: "server.transport",
		},
		{
			name: "http requires listen",
			mutate: func(c *Config) {
				c.Server.Transport = TransportHTTP
				c.Server.Listen = ""
			},
			wantErr: "server.listen",
		},
		{
			name: "reserve above limit",
			mutate: func(c *Config) {
				c.Budget.DailyLimit = 500
				c.Budget.ReserveBuffer = 600
			},
			wantErr: "reserve_buffer",
		},
		{
			name:    "bad warn percent",
			mutate:  func(c *Config) { c.Budget.WarnPercent = 140 },
			wantErr: "warn_percent",
		},
		{
			name:    "unknown persistence driver",
			mutate:  func(c *Config) { c.Persistence.Driver = "dynamo" },
			wantErr: "persistence.driver",
		},
		{
			name:    "unknown cache driver",
			mutate:  func(c *Config) { c.Cache.Driver = cache.Driver("disk") },
			wantErr: "cache.driver",
		},
		{
			name:    "negative provider priority",
			mutate:  func(c *Config) { c.Providers.OpenAI.Priority = -1 },
			wantErr: "providers.openai.priority",
		},
		{
			name:    "unknown logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "unknown logging level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
