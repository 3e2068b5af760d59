// Package types defines the core data structures exchanged between the
// analysis tools, the generation broker, and the provider adapters.
package types

import (
	"fmt"
	"strings"
)

// OutputShape constrains the format of generated content.
type OutputShape string

const (
	OutputText     OutputShape = "text"
	OutputJSON     OutputShape = "json"
	OutputMarkdown OutputShape = "markdown"
)

// GenerationRequest is the unified input for all generation providers. The
// broker treats it as an opaque payload plus tunables; adapters translate it
// into each provider's wire format.
type GenerationRequest struct {
	// System primes the model with task framing. Optional.
	System string `json:"system,omitempty"`
	// Prompt is the payload to generate from.
	Prompt string `json:"prompt"`
	// MaxOutputUnits bounds the size of the produced content, in tokens.
	MaxOutputUnits int `json:"max_output_units,omitempty"`
	// Creativity maps to provider temperature. Nil keeps the provider default.
	Creativity *float64 `json:"creativity,omitempty"`
	// Shape of the expected output.
	Shape OutputShape `json:"shape,omitempty"`
	// ModelHint requests a specific model where the serving provider offers
	// one. Adapters fall back to their configured default otherwise.
	ModelHint string `json:"model_hint,omitempty"`
	// Metadata is carried through to logging sinks, never to providers.
	Metadata map[string]string `json:"-"`
}

// Validate checks the request before admission.
func (r *GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("generation request requires a prompt")
	}
	if r.MaxOutputUnits < 0 {
		return fmt.Errorf("max_output_units must be non-negative, got %d", r.MaxOutputUnits)
	}
	if r.Creativity != nil && (*r.Creativity < 0 || *r.Creativity > 2) {
		return fmt.Errorf("creativity must be within [0, 2], got %v", *r.Creativity)
	}
	switch r.Shape {
	case "", OutputText, OutputJSON, OutputMarkdown:
	default:
		return fmt.Errorf("unknown output shape %q", r.Shape)
	}
	return nil
}

// GenerationUsage is the actual resource cost reported by a provider.
type GenerationUsage struct {
	PromptUnits     int `json:"prompt_units"`
	CompletionUnits int `json:"completion_units"`
	TotalUnits      int `json:"total_units"`
}

// GenerationResult is the outcome of a brokered generation call.
type GenerationResult struct {
	// Content is the produced text.
	Content string `json:"content"`
	// Provider that served the call; "cache" is never used here, see CacheHit.
	Provider string `json:"provider"`
	// Model the provider actually ran.
	Model string `json:"model,omitempty"`
	// Usage holds the provider-reported cost, which is what gets charged.
	Usage GenerationUsage `json:"usage"`
	// LatencyMs is wall-clock time spent on the serving attempt.
	LatencyMs int64 `json:"latency_ms"`
	// CacheHit marks results served from the response cache without any
	// provider contact.
	CacheHit bool `json:"cache_hit,omitempty"`
	// Degraded marks results a caller knowingly served past their TTL
	// during budget exhaustion.
	Degraded bool `json:"degraded,omitempty"`
}
