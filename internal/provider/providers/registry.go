// Package providers maps provider names to their adapter factories and
// default descriptors. Server wiring builds the fallback chain from here
// based on configuration.
package providers

import (
	"fmt"
	"time"

	"github.com/efikuta/youtube-knowledge-mcp/internal/provider/anthropic"
	"github.com/efikuta/youtube-knowledge-mcp/internal/provider/bedrock"
	"github.com/efikuta/youtube-knowledge-mcp/internal/provider/gemini"
	"github.com/efikuta/youtube-knowledge-mcp/internal/provider/openai"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/provider"
)

// Factories maps provider type names to their factory functions.
var Factories = map[string]provider.Factory{
	gemini.ProviderName:    gemini.New,
	openai.ProviderName:    openai.New,
	anthropic.ProviderName: anthropic.New,
	bedrock.ProviderName:   bedrock.New,
}

// DefaultDescriptors returns the standard fallback chain. Lower priority
// goes first; heavier models get the longer timeout.
func DefaultDescriptors() []provider.Descriptor {
	return []provider.Descriptor{
		{
			Name:                   gemini.ProviderName,
			Priority:               1,
			Timeout:                60 * time.Second,
			RequestLimitPerWindow:  1000,
			SizeUnitLimitPerWindow: 4_000_000,
			DefaultModel:           gemini.DefaultModel,
		},
		{
			Name:                   openai.ProviderName,
			Priority:               2,
			Timeout:                60 * time.Second,
			RequestLimitPerWindow:  3500,
			SizeUnitLimitPerWindow: 2_000_000,
			DefaultModel:           openai.DefaultModel,
		},
		{
			Name:                   anthropic.ProviderName,
			Priority:               3,
			Timeout:                120 * time.Second,
			RequestLimitPerWindow:  1000,
			SizeUnitLimitPerWindow: 2_000_000,
			DefaultModel:           anthropic.DefaultModel,
		},
		{
			Name:                   bedrock.ProviderName,
			Priority:               4,
			Timeout:                120 * time.Second,
			RequestLimitPerWindow:  500,
			SizeUnitLimitPerWindow: 1_000_000,
			DefaultModel:           bedrock.DefaultModel,
		},
	}
}

// New builds an adapter by provider name.
func New(name string, cfg provider.Config) (provider.Provider, error) {
	factory, ok := Factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return factory(cfg)
}
