// Package bedrock implements the AWS Bedrock provider adapter. Requests are
// signed with SigV4 and sent to the InvokeModel endpoint using the Anthropic
// payload dialect Bedrock expects for Claude models.
package bedrock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	ytkerrors "github.com/efikuta/youtube-knowledge-mcp/pkg/errors"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/provider"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "bedrock"

	// DefaultRegion is the default AWS region.
	DefaultRegion = "us-east-1"

	// DefaultModel serves requests without a model hint.
	DefaultModel = "anthropic.claude-3-5-haiku-20241022-v1:0"

	// anthropicVersion is the payload dialect marker Bedrock requires for
	// Claude models.
	anthropicVersion = "bedrock-2023-05-31"

	// defaultMaxTokens applies when the request does not bound output size.
	defaultMaxTokens = 4096

	signingService = "bedrock"
)

// Provider implements the AWS Bedrock InvokeModel adapter.
type Provider struct {
	awsCfg  aws.Config
	region  string
	baseURL string
	model   string
	now     func() time.Time
}

// New creates a new Bedrock provider instance. Credentials come from the
// standard AWS chain (environment, shared config, instance role) unless the
// API key carries a static "access:secret" pair.
func New(cfg provider.Config) (provider.Provider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if access, secret, ok := strings.Cut(cfg.APIKey, ":"); ok {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(access, secret, "")))
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	region := awsCfg.Region
	if region == "" {
		region = DefaultRegion
		awsCfg.Region = region
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Provider{
		awsCfg:  awsCfg,
		region:  region,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		now:     time.Now,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderName
}

// Model resolves the serving model for a hint.
func (p *Provider) Model(hint string) string {
	if strings.HasPrefix(hint, "anthropic.") {
		return hint
	}
	return p.model
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudePayload is the Anthropic dialect Bedrock expects for Claude models.
type claudePayload struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
	System           string           `json:"system,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// claudeResponse is the InvokeModel response body for Claude models.
type claudeResponse struct {
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// BuildRequest creates a SigV4-signed HTTP request for the Bedrock
// InvokeModel API.
func (p *Provider) BuildRequest(ctx context.Context, req *types.GenerationRequest) (*http.Request, error) {
	prompt := req.Prompt
	if req.Shape == types.OutputJSON {
		prompt += "\n\nRespond with a single JSON object and nothing else."
	}

	payload := &claudePayload{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        defaultMaxTokens,
		Messages:         []bedrockMessage{{Role: "user", Content: prompt}},
		System:           req.System,
		Temperature:      req.Creativity,
	}
	if req.MaxOutputUnits > 0 {
		payload.MaxTokens = req.MaxOutputUnits
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/model/%s/invoke", p.baseURL, p.Model(req.ModelHint))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	creds, err := p.awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieve credentials: %w", err)
	}

	payloadHash := sha256.Sum256(body)
	signer := v4.NewSigner()
	if err := signer.SignHTTP(ctx, creds, httpReq,
		hex.EncodeToString(payloadHash[:]), signingService, p.region, p.now()); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	return httpReq, nil
}

// ParseResponse transforms a Bedrock InvokeModel response into a
// GenerationResult.
func (p *Provider) ParseResponse(resp *http.Response) (*types.GenerationResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(claudeResp.Content) == 0 {
		return nil, ytkerrors.NewUpstreamError(ProviderName, resp.StatusCode, "empty content list")
	}

	var content strings.Builder
	for _, block := range claudeResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	result := &types.GenerationResult{
		Content:  content.String(),
		Provider: ProviderName,
		Model:    claudeResp.Model,
		Usage: types.GenerationUsage{
			PromptUnits:     claudeResp.Usage.InputTokens,
			CompletionUnits: claudeResp.Usage.OutputTokens,
			TotalUnits:      claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
		},
	}
	if result.Model == "" {
		result.Model = p.model
	}

	return result, nil
}

// MapError converts a Bedrock error response to a typed error. Bedrock
// reports the exception class in the body's message, not in a structured
// error object.
func (p *Provider) MapError(statusCode int, body []byte) error {
	message := gjson.GetBytes(body, "message").String()
	if message == "" {
		message = "unknown error"
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ytkerrors.NewAuthenticationError(ProviderName, message)
	case http.StatusTooManyRequests:
		return ytkerrors.NewThrottledError(ProviderName, message)
	case http.StatusBadRequest:
		if strings.Contains(message, "too many input tokens") {
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
