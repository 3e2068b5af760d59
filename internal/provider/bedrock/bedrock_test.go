package bedrock

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

func newTestProvider(t *testing.T) *Provider {
	t.Helper()

	p, err := New(provider.Config{
		APIKey: "test-access:test-secret",
		Region: "us-west-2",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p.(*Provider)
}

func TestNew_RegionalEndpoint(t *testing.T) {
	p := newTestProvider(t)

	if p.region != "us-west-2" {
		t.Errorf("region = %s, want us-west-2", p.region)
	}
	if p.baseURL != "https://bedrock-runtime.us-west-2.amazonaws.com" {
		t.Errorf("baseURL = %s", p.baseURL)
	}
}

func TestProvider_Model(t *testing.T) {
	p := newTestProvider(t)

	if got := p.Model("anthropic.claude-3-opus-20240229-v1:0"); got != "anthropic.claude-3-opus-20240229-v1:0" {
		t.Errorf("Model() = %s, want hinted model", got)
	}
	if got := p.Model("gpt-4o"); got != DefaultModel {
		t.Errorf("Model() = %s, want default for foreign hint", got)
	}
}

func TestProvider_BuildRequest_SignsWithSigV4(t *testing.T) {
	p := newTestProvider(t)

	req := &types.GenerationRequest{
		Prompt:         "Summarize",
		System:         "You are concise",
		MaxOutputUnits: 700,
	}

	httpReq, err := p.BuildRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}

	wantPath := "/model/" + DefaultModel + "/invoke"
	if httpReq.URL.Path != wantPath {
		t.Errorf("URL path = %s, want %s", httpReq.URL.Path, wantPath)
	}

	auth := httpReq.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256") {
		t.Errorf("Authorization = %s, want SigV4 scheme", auth)
	}
	if !strings.Contains(auth, "Credential=test-access") {
		t.Error("Authorization should carry the access key id")
	}
	if !strings.Contains(auth, "/us-west-2/bedrock/") {
		t.Error("Authorization scope should name region and service")
	}
	if httpReq.Header.Get("X-Amz-Date") == "" {
		t.Error("X-Amz-Date should be set by the signer")
	}

	body, _ := io.ReadAll(httpReq.Body)
	var sent claudePayload
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if sent.AnthropicVersion != anthropicVersion {
		t.Errorf("anthropic_version = %s, want %s", sent.AnthropicVersion, anthropicVersion)
	}
	if sent.MaxTokens != 700 {
		t.Errorf("max_tokens = %d, want 700", sent.MaxTokens)
	}
	if sent.System != "You are concise" {
		t.Errorf("system = %s", sent.System)
	}
}

func TestProvider_ParseResponse(t *testing.T) {
	p := newTestProvider(t)

	body := `{
		"content": [{"type": "text", "text": "Done."}],
		"model": "claude-3-5-haiku-20241022",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 20, "output_tokens": 2}
	}`

	result, err := p.ParseResponse(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
	})
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}

	if result.Content != "Done." {
		t.Errorf("Content = %q", result.Content)
	}
	if result.Provider != ProviderName {
		t.Errorf("Provider = %s", result.Provider)
	}
	if result.Usage.TotalUnits != 22 {
		t.Errorf("TotalUnits = %d, want 22", result.Usage.TotalUnits)
	}
}

func TestProvider_MapError(t *testing.T) {
	p := newTestProvider(t)

	tests := []struct {
		name          string
		statusCode    int
		body          string
		wantType      string
		wantRetryable bool
	}{
		{"throttling", 429, `{"message": "Too many requests, please wait before trying again."}`, ytkerrors.TypeThrottled, true},
		{"access denied", 403, `{"message": "User is not authorized to perform bedrock:InvokeModel"}`, ytkerrors.TypeAuthentication, false},
		{"validation", 400, `{"message": "Malformed input request"}`, ytkerrors.TypeInvalidRequest, false},
		{"input too long", 400, `{"message": "Input is too long: too many input tokens"}`, ytkerrors.TypePayloadTooLarge, false},
		{"model not found", 404, `{"message": "Could not resolve the foundation model"}`, ytkerrors.TypeNotFound, false},
		{"unavailable", 503, `{"message": "Model is currently overloaded"}`, ytkerrors.TypeUnavailable, true},
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
