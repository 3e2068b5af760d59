// Package gemini implements the Google Gemini provider adapter. It maps
// generation requests onto the generateContent API.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	ytkerrors "github.com/efikuta/youtube-knowledge-mcp/pkg/errors"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/provider"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "gemini"

	// DefaultBaseURL is the Google AI Studio API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultAPIVersion is the Gemini API version in use.
	DefaultAPIVersion = "v1beta"

	// DefaultModel serves requests without a model hint.
	DefaultModel = "gemini-1.5-flash"
)

// Provider implements the Gemini API adapter.
type Provider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
}

// New creates a new Gemini provider instance.
func New(cfg provider.Config) (provider.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Provider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiVersion: DefaultAPIVersion,
		model:      model,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderName
}

// Model resolves the serving model for a hint.
func (p *Provider) Model(hint string) string {
	if strings.HasPrefix(hint, "gemini-") {
		return hint
	}
	return p.model
}

// geminiRequest is the generateContent request format.
type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

// geminiResponse is the generateContent response format.
type geminiResponse struct {
	Candidates     []candidate     `json:"candidates"`
	UsageMetadata  *usageMetadata  `json:"usageMetadata,omitempty"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
}

type candidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// BuildRequest creates an HTTP request for the Gemini API.
func (p *Provider) BuildRequest(ctx context.Context, req *types.GenerationRequest) (*http.Request, error) {
	geminiReq := &geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
		GenerationConfig: &generationConfig{},
	}

	if req.System != "" {
		geminiReq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.System}},
		}
	}
	if req.MaxOutputUnits > 0 {
		geminiReq.GenerationConfig.MaxOutputTokens = req.MaxOutputUnits
	}
	if req.Creativity != nil {
		geminiReq.GenerationConfig.Temperature = req.Creativity
	}
	if req.Shape == types.OutputJSON {
		geminiReq.GenerationConfig.ResponseMimeType = "application/json"
	}

	body, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s",
		p.baseURL, p.apiVersion, p.Model(req.ModelHint), p.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return httpReq, nil
}

// ParseResponse transforms a Gemini response into a GenerationResult.
func (p *Provider) ParseResponse(resp *http.Response) (*types.GenerationResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		if geminiResp.PromptFeedback != nil && geminiResp.PromptFeedback.BlockReason != "" {
			return nil, ytkerrors.NewInvalidRequestError(ProviderName,
				fmt.Sprintf("prompt blocked: %s", geminiResp.PromptFeedback.BlockReason))
		}
		return nil, ytkerrors.NewUpstreamError(ProviderName, resp.StatusCode, "empty candidate list")
	}

	var content strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}

	result := &types.GenerationResult{
		Content:  content.String(),
		Provider: ProviderName,
		Model:    geminiResp.ModelVersion,
	}
	if result.Model == "" {
		result.Model = p.model
	}
	if geminiResp.UsageMetadata != nil {
		result.Usage = types.GenerationUsage{
			PromptUnits:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionUnits: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalUnits:      geminiResp.UsageMetadata.TotalTokenCount,
		}
	}

	return result, nil
}

// MapError converts a Gemini error response to a typed error.
func (p *Provider) MapError(statusCode int, body []byte) error {
	message := gjson.GetBytes(body, "error.message").String()
	if message == "" {
		message = "unknown error"
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ytkerrors.NewAuthenticationError(ProviderName, message)
	case http.StatusTooManyRequests:
		return ytkerrors.NewThrottledError(ProviderName, message)
	case http.StatusBadRequest:
		if gjson.GetBytes(body, "error.status").String() == "RESOURCE_EXHAUSTED" {
			return ytkerrors.NewThrottledError(ProviderName, message)
		}
		return ytkerrors.NewInvalidRequestError(ProviderName, message)
	case http.StatusRequestEntityTooLarge:
		return ytkerrors.NewPayloadTooLargeError(ProviderName, message)
	case http.StatusNotFound:
		return ytkerrors.NewNotFoundError(ProviderName, message)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ytkerrors.NewTimeoutError(ProviderName, message)
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return ytkerrors.NewUnavailableError(ProviderName, message)
	default:
		return ytkerrors.NewUpstreamError(ProviderName, statusCode, message)
	}
}
