// Package openai implements the OpenAI provider adapter on top of the chat
// completions API.
package openai

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
	ProviderName = "openai"

	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel serves requests without a model hint.
	DefaultModel = "gpt-4o-mini"
)

// Provider implements the OpenAI API adapter.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
}

// New creates a new OpenAI provider instance.
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
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderName
}

// Model resolves the serving model for a hint.
func (p *Provider) Model(hint string) string {
	if strings.HasPrefix(hint, "gpt-") || strings.HasPrefix(hint, "o1-") || strings.HasPrefix(hint, "o3-") {
		return hint
	}
	return p.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatRequest is the chat completions request format.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatResponse is the chat completions response format.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// BuildRequest creates an HTTP request for the OpenAI API.
func (p *Provider) BuildRequest(ctx context.Context, req *types.GenerationRequest) (*http.Request, error) {
	chatReq := &chatRequest{
		Model:       p.Model(req.ModelHint),
		Temperature: req.Creativity,
	}
	if req.System != "" {
		chatReq.Messages = append(chatReq.Messages, chatMessage{Role: "system", Content: req.System})
	}
	chatReq.Messages = append(chatReq.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.MaxOutputUnits > 0 {
		chatReq.MaxTokens = req.MaxOutputUnits
	}
	if req.Shape == types.OutputJSON {
		chatReq.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	return httpReq, nil
}

// ParseResponse transforms an OpenAI response into a GenerationResult.
func (p *Provider) ParseResponse(resp *http.Response) (*types.GenerationResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, ytkerrors.NewUpstreamError(ProviderName, resp.StatusCode, "empty choice list")
	}

	result := &types.GenerationResult{
		Content:  chatResp.Choices[0].Message.Content,
		Provider: ProviderName,
		Model:    chatResp.Model,
		Usage: types.GenerationUsage{
			PromptUnits:     chatResp.Usage.PromptTokens,
			CompletionUnits: chatResp.Usage.CompletionTokens,
			TotalUnits:      chatResp.Usage.TotalTokens,
		},
	}
	if result.Model == "" {
		result.Model = p.model
	}

	return result, nil
}

// MapError converts an OpenAI error response to a typed error.
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
		if gjson.GetBytes(body, "error.code").String() == "context_length_exceeded" {
			return ytkerrors.NewPayloadTooLargeError(ProviderName, message)
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
