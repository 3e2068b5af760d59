// Package ytkmcp brokers LLM generation calls for the YouTube knowledge
// server. It fronts a ranked chain of providers (Gemini, OpenAI, Anthropic,
// Bedrock) with per-caller quota admission, response caching, per-provider
// rate windows, and sequential fallback with exponential backoff.
//
// Basic usage:
//
//	broker, err := ytkmcp.New(
//	    ytkmcp.WithProviderConfig(
//	        providers.DefaultDescriptors()[0],
//	        ytkmcp.ProviderConfig{APIKey: os.Getenv("GEMINI_API_KEY")},
//	    ),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer broker.Close()
//
//	result, err := broker.Generate(ctx, "caller-1", &ytkmcp.GenerationRequest{
//	    Prompt: "Summarize the transcript below.\n\n" + transcript,
//	})
package ytkmcp

import (
	"github.com/efikuta/youtube-knowledge-mcp/internal/cache"
	"github.com/efikuta/youtube-knowledge-mcp/internal/observability"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/provider"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

// Version is the current version of the module.
const Version = "1.0.0"

// Re-export core request/response types so callers can stay on the root
// package for everyday use.
type (
	// GenerationRequest describes one generation call.
	GenerationRequest = types.GenerationRequest

	// GenerationResult is a completed generation with usage and provenance.
	GenerationResult = types.GenerationResult

	// GenerationUsage counts prompt/completion size units.
	GenerationUsage = types.GenerationUsage

	// OutputShape constrains the response format.
	OutputShape = types.OutputShape

	// UsageSnapshot is the budget ledger's public view.
	UsageSnapshot = types.UsageSnapshot

	// ProviderWindow is one provider's rate-window state.
	ProviderWindow = types.ProviderWindow

	// CallerUsage is one caller's quota consumption.
	CallerUsage = types.CallerUsage

	// Provider is the generation backend adapter interface.
	Provider = provider.Provider

	// ProviderConfig configures one adapter instance.
	ProviderConfig = provider.Config

	// Descriptor ranks a provider in the fallback chain.
	Descriptor = provider.Descriptor

	// Cache is the response cache interface.
	Cache = cache.Cache

	// Callback receives generation telemetry events.
	Callback = observability.Callback

	// GenerationEvent is the telemetry payload dispatched per request.
	GenerationEvent = observability.GenerationEvent
)

// Output shape values.
const (
	OutputText     = types.OutputText
	OutputJSON     = types.OutputJSON
	OutputMarkdown = types.OutputMarkdown
)
