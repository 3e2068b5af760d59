package ytkmcp

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efikuta/youtube-knowledge-mcp/internal/observability"
)

type captureCallback struct {
	mu        sync.Mutex
	successes []observability.GenerationEvent
	failures  []observability.GenerationEvent
}

func (c *captureCallback) Name() string { return "capture" }

func (c *captureCallback) LogSuccessEvent(ctx context.Context, event *observability.GenerationEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = append(c.successes, *event)
	return nil
}

func (c *captureCallback) LogFailureEvent(ctx context.Context, event *observability.GenerationEvent, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, *event)
	return nil
}

func (c *captureCallback) Shutdown(ctx context.Context) error { return nil }

func newCaptureClient(t *testing.T, opts ...Option) (*Client, *captureCallback) {
	t.Helper()
	capture := &captureCallback{}
	manager := observability.NewCallbackManager(nil)
	manager.Register(capture)
	opts = append(opts, WithCallbacks(manager))
	return newTestClient(t, opts...), capture
}

func TestGenerate_SuccessEventPayload(t *testing.T) {
	server := newGenerationServer(t, "x")
	client, capture := newCaptureClient(t,
		WithProviderInstance(testDescriptor("stub", 1), &stubProvider{name: "stub", baseURL: server.URL}),
	)

	_, err := client.Generate(context.Background(), "caller-1", &GenerationRequest{Prompt: "p"})
	require.NoError(t, err)

	require.Len(t, capture.successes, 1)
	event := capture.successes[0]
	assert.NotEmpty(t, event.RequestID)
	assert.Equal(t, "caller-1", event.CallerID)
	assert.Equal(t, observability.StatusSuccess, event.Status)
	assert.Equal(t, "stub", event.Provider)
	assert.Equal(t, 15, event.TotalUnits)
	assert.Positive(t, event.EstimatedUnits)
	assert.False(t, event.CacheHit)
	require.Len(t, event.Attempts, 1)
	assert.False(t, event.Attempts[0].Skipped)
}

func TestGenerate_FallbackEventAttemptLog(t *testing.T) {
	primary := newGenerationServer(t, "x")
	primary.status.Store(http.StatusServiceUnavailable)
	secondary := newGenerationServer(t, "y")

	client, capture := newCaptureClient(t,
		WithProviderInstance(testDescriptor("primary", 1), &stubProvider{name: "primary", baseURL: primary.URL}),
		WithProviderInstance(testDescriptor("secondary", 2), &stubProvider{name: "secondary", baseURL: secondary.URL}),
	)

	_, err := client.Generate(context.Background(), "caller", &GenerationRequest{Prompt: "p"})
	require.NoError(t, err)

	require.Len(t, capture.successes, 1)
	attempts := capture.successes[0].Attempts
	require.Len(t, attempts, 2)
	assert.Equal(t, "primary", attempts[0].Provider)
	assert.NotEmpty(t, attempts[0].Reason)
	assert.Equal(t, "secondary", attempts[1].Provider)
	assert.Empty(t, attempts[1].Reason)
}

func TestGenerate_FailureEventPayload(t *testing.T) {
	server := newGenerationServer(t, "x")
	server.status.Store(http.StatusServiceUnavailable)

	client, capture := newCaptureClient(t,
		WithProviderInstance(testDescriptor("stub", 1), &stubProvider{name: "stub", baseURL: server.URL}),
	)

	_, err := client.Generate(context.Background(), "caller", &GenerationRequest{Prompt: "p"})
	require.Error(t, err)

	require.Len(t, capture.failures, 1)
	event := capture.failures[0]
	assert.Equal(t, observability.StatusFailure, event.Status)
	assert.NotEmpty(t, event.ErrorType)
	require.Len(t, event.Attempts, 1)
}

func TestGenerate_CacheHitEventTagged(t *testing.T) {
	server := newGenerationServer(t, "x")
	client, capture := newCaptureClient(t,
		WithCache(newTestCache(t)),
		WithProviderInstance(testDescriptor("stub", 1), &stubProvider{name: "stub", baseURL: server.URL}),
	)

	req := &GenerationRequest{Prompt: "p"}
	_, err := client.Generate(context.Background(), "caller", req)
	require.NoError(t, err)
	_, err = client.Generate(context.Background(), "caller", req)
	require.NoError(t, err)

	require.Len(t, capture.successes, 2)
	assert.False(t, capture.successes[0].CacheHit)
	assert.True(t, capture.successes[1].CacheHit)
	assert.Empty(t, capture.successes[1].Attempts, "cache hit makes no provider attempts")
}
