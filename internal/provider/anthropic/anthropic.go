// Package anthropic implements the Anthropic Claude provider adapter on top
// of the Messages API.
package anthropic

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
	ProviderName = "anthropic"

	// DefaultBaseURL is the default Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is the Anthropic API version in use.
	DefaultAPIVersion = "2023-06-01"

	// DefaultModel serves requests without a model hint.
	DefaultModel = "claude-3-5-haiku-latest"

	// DefaultMaxTokens applies when the request does not bound output size.
	// The Messages API requires max_tokens on every call.
	DefaultMaxTokens = 4096

	// statusOverloaded is Anthropic's non-standard overload status.
	statusOverloaded = 529
)

// Provider implements the Anthropic Messages API adapter.
type Provider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
}

// New creates a new Anthropic provider instance.
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
	if strings.HasPrefix(hint, "claude-") {
		return hint
	}
	return p.model
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicRequest is the Messages API request format.
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// anthropicResponse is the Messages API response format.
type anthropicResponse struct {
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// BuildRequest creates an HTTP request for the Anthropic API.
func (p *Provider) BuildRequest(ctx context.Context, req *types.GenerationRequest) (*http.Request, error) {
	prompt := req.Prompt
	if req.Shape == types.OutputJSON {
		// The Messages API has no response_format knob, so the shape
		// constraint rides on the prompt.
		prompt += "\n\nRespond with a single JSON object and nothing else."
	}

	anthropicReq := &anthropicRequest{
		Model:       p.Model(req.ModelHint),
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   DefaultMaxTokens,
		System:      req.System,
		Temperature: req.Creativity,
	}
	if req.MaxOutputUnits > 0 {
		anthropicReq.MaxTokens = req.MaxOutputUnits
	}

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", p.apiVersion)

	return httpReq, nil
}

// ParseResponse transforms an Anthropic response into a GenerationResult.
func (p *Provider) ParseResponse(resp *http.Response) (*types.GenerationResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(anthropicResp.Content) == 0 {
		return nil, ytkerrors.NewUpstreamError(ProviderName, resp.StatusCode, "empty content list")
	}

	var content strings.Builder
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	result := &types.GenerationResult{
		Content:  content.String(),
		Provider: ProviderName,
		Model:    anthropicResp.Model,
		Usage: types.GenerationUsage{
			PromptUnits:     anthropicResp.Usage.InputTokens,
			CompletionUnits: anthropicResp.Usage.OutputTokens,
			TotalUnits:      anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
		},
	}
	if result.Model == "" {
		result.Model = p.model
	}

	return result, nil
}

// MapError converts an Anthropic error response to a typed error.
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
		if gjson.GetBytes(body, "error.type").String() == "invalid_request_error" &&
			strings.Contains(message, "prompt is too long") {
			return ytkerrors.NewPayloadTooLargeError(ProviderName, message)
		}
		return ytkerrors.NewInvalidRequestError(ProviderName, message)
	case http.StatusRequestEntityTooLarge:
		return ytkerrors.NewPayloadTooLargeError(ProviderName, message)
	case http.StatusNotFound:
		return ytkerrors.NewNotFoundError(ProviderName, message)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ytkerrors.NewTimeoutError(ProviderName, message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, statusOverloaded:
		return ytkerrors.NewUnavailableError(ProviderName, message)
	default:
		return ytkerrors.NewUpstreamError(ProviderName, statusCode, message)
	}
}
