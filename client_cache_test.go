package ytkmcp

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efikuta/youtube-knowledge-mcp/internal/cache"
)

func newTestCache(t *testing.T) Cache {
	t.Helper()
	c := cache.NewMemoryCache(cache.DefaultMemoryConfig(), nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGenerate_CacheHitSkipsProvider(t *testing.T) {
	server := newGenerationServer(t, "cached answer")
	client := newTestClient(t,
		WithCache(newTestCache(t)),
		WithProviderInstance(testDescriptor("stub", 1), &stubProvider{name: "stub", baseURL: server.URL}),
	)

	req := &GenerationRequest{Prompt: "summarize this"}

	first, err := client.Generate(context.Background(), "caller", req)
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.Equal(t, int64(1), server.calls.Load())

	second, err := client.Generate(context.Background(), "caller", req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, "cached answer", second.Content)
	assert.Equal(t, "stub", second.Provider, "cached result keeps original provenance")
	assert.Equal(t, int64(1), server.calls.Load(), "cache hit must not contact providers")
}

func TestGenerate_CacheHitNotCharged(t *testing.T) {
	server := newGenerationServer(t, "x")
	client := newTestClient(t,
		WithCache(newTestCache(t)),
		WithProviderInstance(testDescriptor("stub", 1), &stubProvider{name: "stub", baseURL: server.URL}),
	)

	req := &GenerationRequest{Prompt: "p"}
	_, err := client.Generate(context.Background(), "caller", req)
	require.NoError(t, err)
	_, err = client.Generate(context.Background(), "caller", req)
	require.NoError(t, err)

	windows := client.ProviderWindows()
	require.Len(t, windows, 1)
	assert.Equal(t, int64(1), windows[0].Requests, "cache hit must not consume the provider window")

	usage := client.CallerUsage("caller")
	assert.Equal(t, int64(15), usage.DailyUnits, "cache hit must not charge the caller")
}

func TestGenerate_CacheKeyedByRequestShape(t *testing.T) {
	server := newGenerationServer(t, "x")
	client := newTestClient(t,
		WithCache(newTestCache(t)),
		WithProviderInstance(testDescriptor("stub", 1), &stubProvider{name: "stub", baseURL: server.URL}),
	)

	ctx := context.Background()
	_, err := client.Generate(ctx, "caller", &GenerationRequest{Prompt: "same"})
	require.NoError(t, err)

	// Different prompt, shape, hint, and output budget each miss.
	variants := []*GenerationRequest{
		{Prompt: "different"},
		{Prompt: "same", Shape: OutputJSON},
		{Prompt: "same", ModelHint: "stub-model-xl"},
		{Prompt: "same", MaxOutputUnits: 256},
	}
	for _, req := range variants {
		_, err := client.Generate(ctx, "caller", req)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(5), server.calls.Load(), "each variant is a distinct cache entry")
}

func TestGenerate_FailureNotCached(t *testing.T) {
	server := newGenerationServer(t, "late success")
	server.status.Store(http.StatusServiceUnavailable)

	client := newTestClient(t,
		WithCache(newTestCache(t)),
		WithProviderInstance(testDescriptor("stub", 1), &stubProvider{name: "stub", baseURL: server.URL}),
	)

	req := &GenerationRequest{Prompt: "p"}
	_, err := client.Generate(context.Background(), "caller", req)
	require.Error(t, err)

	server.status.Store(http.StatusOK)
	result, err := client.Generate(context.Background(), "caller", req)
	require.NoError(t, err)
	assert.False(t, result.CacheHit, "failed attempt must not have poisoned the cache")
	assert.Equal(t, "late success", result.Content)
}

func TestGenerate_NoCacheConfigured(t *testing.T) {
	server := newGenerationServer(t, "x")
	client := newTestClient(t,
		WithProviderInstance(testDescriptor("stub", 1), &stubProvider{name: "stub", baseURL: server.URL}),
	)

	req := &GenerationRequest{Prompt: "p"}
	for i := 0; i < 3; i++ {
		_, err := client.Generate(context.Background(), "caller", req)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), server.calls.Load())
}
