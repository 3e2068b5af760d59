package anthropic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	ytkerrors "github.com/efikuta/youtube-knowledge-mcp/pkg/errors"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/provider"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

func TestProvider_BuildRequest(t *testing.T) {
	p, _ := New(provider.Config{APIKey: "test-api-key"})

	req := &types.GenerationRequest{
		Prompt:         "Cluster these comments",
		System:         "You analyse audience sentiment",
		MaxOutputUnits: 800,
		ModelHint:      "claude-3-5-sonnet-latest",
	}

	httpReq, err := p.BuildRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}

	if !strings.HasSuffix(httpReq.URL.String(), "/v1/messages") {
		t.Errorf("URL = %s, want /v1/messages suffix", httpReq.URL.String())
	}
	if got := httpReq.Header.Get("x-api-key"); got != "test-api-key" {
		t.Errorf("x-api-key = %s", got)
	}
	if got := httpReq.Header.Get("anthropic-version"); got != DefaultAPIVersion {
		t.Errorf("anthropic-version = %s, want %s", got, DefaultAPIVersion)
	}

	body, _ := io.ReadAll(httpReq.Body)
	var sent anthropicRequest
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}

	if sent.Model != "claude-3-5-sonnet-latest" {
		t.Errorf("model = %s, want hinted model", sent.Model)
	}
	if sent.System != "You analyse audience sentiment" {
		t.Errorf("system = %s", sent.System)
	}
	if sent.MaxTokens != 800 {
		t.Errorf("max_tokens = %d, want 800", sent.MaxTokens)
	}
	if len(sent.Messages) != 1 || sent.Messages[0].Role != "user" {
		t.Errorf("messages = %+v, want single user message", sent.Messages)
	}
}

func TestProvider_BuildRequest_DefaultMaxTokens(t *testing.T) {
	p, _ := New(provider.Config{APIKey: "k"})

	httpReq, err := p.BuildRequest(context.Background(), &types.GenerationRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}

	body, _ := io.ReadAll(httpReq.Body)
	var sent anthropicRequest
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if sent.MaxTokens != DefaultMaxTokens {
		t.Errorf("max_tokens = %d, want default %d", sent.MaxTokens, DefaultMaxTokens)
	}
}

func TestProvider_BuildRequest_JSONShape(t *testing.T) {
	p, _ := New(provider.Config{APIKey: "k"})

	httpReq, err := p.BuildRequest(context.Background(), &types.GenerationRequest{
		Prompt: "List topics",
		Shape:  types.OutputJSON,
	})
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}

	body, _ := io.ReadAll(httpReq.Body)
	var sent anthropicRequest
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if !strings.Contains(sent.Messages[0].Content, "JSON object") {
		t.Error("JSON shape should append a format instruction to the prompt")
	}
}

func TestProvider_ParseResponse(t *testing.T) {
	p, _ := New(provider.Config{APIKey: "k"})

	body := `{
		"content": [{"type": "text", "text": "Sentiment is "}, {"type": "text", "text": "mostly positive."}],
		"model": "claude-3-5-haiku-20241022",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 30, "output_tokens": 6}
	}`

	result, err := p.ParseResponse(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
	})
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}

	if result.Content != "Sentiment is mostly positive." {
		t.Errorf("Content = %q", result.Content)
	}
	if result.Usage.PromptUnits != 30 || result.Usage.CompletionUnits != 6 || result.Usage.TotalUnits != 36 {
		t.Errorf("Usage = %+v, want 30/6/36", result.Usage)
	}
}

func TestProvider_ParseResponse_EmptyContent(t *testing.T) {
	p, _ := New(provider.Config{APIKey: "k"})

	_, err := p.ParseResponse(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{"content": []}`)),
	})
	if err == nil {
		t.Fatal("ParseResponse() should fail on empty content")
	}
}

func TestProvider_MapError(t *testing.T) {
	p, _ := New(provider.Config{APIKey: "k"})

	tests := []struct {
		name          string
		statusCode    int
		body          string
		wantType      string
		wantRetryable bool
	}{
		{"unauthorized", 401, `{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`, ytkerrors.TypeAuthentication, false},
		{"rate limited", 429, `{"type": "error", "error": {"type": "rate_limit_error", "message": "rate limited"}}`, ytkerrors.TypeThrottled, true},
		{"prompt too long", 400, `{"type": "error", "error": {"type": "invalid_request_error", "message": "prompt is too long: 210000 tokens"}}`, ytkerrors.TypePayloadTooLarge, false},
		{"bad request", 400, `{"type": "error", "error": {"type": "invalid_request_error", "message": "max_tokens required"}}`, ytkerrors.TypeInvalidRequest, false},
		{"overloaded", 529, `{"type": "error", "error": {"type": "overloaded_error", "message": "overloaded"}}`, ytkerrors.TypeUnavailable, true},
		{"server error", 500, `{"type": "error", "error": {"type": "api_error", "message": "internal"}}`, ytkerrors.TypeUpstream, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.MapError(tt.statusCode, []byte(tt.body))

			var apiErr *ytkerrors.Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("MapError() = %T, want *ytkerrors.Error", err)
			}
			if apiErr.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", apiErr.Type, tt.wantType)
			}
			if apiErr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", apiErr.Retryable, tt.wantRetryable)
			}
		})
	}
}
