// Package provider defines the interface for generation provider adapters.
// Each backend (Gemini, OpenAI, Anthropic, Bedrock) implements this
// interface to handle request building, response parsing, and error
// mapping; the broker owns transport, timeouts, and fallback.
package provider

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

// Provider is implemented by every generation backend adapter.
type Provider interface {
	// Name returns the provider identifier (e.g., "gemini", "openai").
	Name() string

	// Model resolves the model that will serve a request: the caller's
	// hint when the adapter recognizes it, the configured default
	// otherwise.
	Model(hint string) string

	// BuildRequest transforms a generation request into a provider-specific
	// HTTP request. It handles parameter mapping, headers, and body
	// serialization.
	BuildRequest(ctx context.Context, req *types.GenerationRequest) (*http.Request, error)

	// ParseResponse transforms a provider-specific success response into a
	// GenerationResult. The broker fills in latency and provider name.
	ParseResponse(resp *http.Response) (*types.GenerationResult, error)

	// MapError converts a non-2xx provider response into a typed error
	// carrying the retryable/fatal classification.
	MapError(statusCode int, body []byte) error
}

// TokenSource retrieves access tokens for providers that authenticate
// with short-lived credentials instead of static API keys.
type TokenSource interface {
	Token() (string, error)
}

// Config contains the configuration one adapter is built from.
type Config struct {
	Name        string
	APIKey      string
	TokenSource TokenSource
	BaseURL     string
	Model       string
	Region      string
	Timeout     time.Duration
	Headers     map[string]string
}

// Factory creates provider instances from configuration.
type Factory func(cfg Config) (Provider, error)

// Descriptor declares a provider's place in the fallback chain and the
// per-window limits the rate tracker enforces for it. Descriptors are
// built once at startup from credential presence; there is no runtime
// re-probing.
type Descriptor struct {
	Name     string        `json:"name"`
	Priority int           `json:"priority"` // lower = tried first
	Timeout  time.Duration `json:"timeout"`

	RequestLimitPerWindow  int64 `json:"request_limit_per_window"`
	SizeUnitLimitPerWindow int64 `json:"size_unit_limit_per_window"`

	DefaultModel string `json:"default_model"`
}

// ValidateBaseURL validates a provider base URL override. Conservative:
// userinfo, query, and fragment are rejected, and so are loopback/private
// hosts unless explicitly allowed, since overrides come from config files
// that may be attacker-influenced in shared deployments.
func ValidateBaseURL(raw string, allowPrivate bool) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base_url scheme %q (must be http or https)", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("invalid base_url host %q", u.Host)
	}
	if u.User != nil {
		return fmt.Errorf("base_url must not contain userinfo")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("base_url must not contain query or fragment")
	}

	if !allowPrivate && isPrivateOrLoopbackHost(u.Hostname()) {
		return fmt.Errorf("base_url host %q is private/loopback (set allow_private_base_url to override)", u.Hostname())
	}
	return nil
}

func isPrivateOrLoopbackHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}

	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	return !ip.IsGlobalUnicast()
}
