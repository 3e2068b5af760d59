package secret

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	values map[string]string
	calls  int
	closed bool
}

func (f *fakeProvider) Get(_ context.Context, path string) (string, error) {
	f.calls++
	value, ok := f.values[path]
	if !ok {
		return "", fmt.Errorf("no value at %q", path)
	}
	return value, nil
}

func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func TestResolverLiteralPassthrough(t *testing.T) {
	r := NewResolver()

	value, err := r.Resolve(context.Background(), "plain-api-key")
	require.NoError(t, err)
	assert.Equal(t, "plain-api-key", value)

	value, err = r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestResolverRoutesByScheme(t *testing.T) {
	r := NewResolver()
	r.Register("fake", &fakeProvider{values: map[string]string{"KEY": "v1"}})

	value, err := r.Resolve(context.Background(), "fake://KEY")
	require.NoError(t, err)
	assert.Equal(t, "v1", value)
}

func TestResolverUnknownScheme(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve(context.Background(), "vault://kv/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault")
}

func TestResolveOptional(t *testing.T) {
	r := NewResolver()
	r.Register("fake", &fakeProvider{values: map[string]string{"KEY": "v1"}})

	assert.Equal(t, "v1", r.ResolveOptional(context.Background(), "fake://KEY"))
	assert.Empty(t, r.ResolveOptional(context.Background(), "fake://ABSENT"))
	assert.Empty(t, r.ResolveOptional(context.Background(), "unregistered://x"))
}

func TestResolverClose(t *testing.T) {
	fake := &fakeProvider{}
	r := NewResolver()
	r.Register("fake", fake)

	require.NoError(t, r.Close())
	assert.True(t, fake.closed)
}

func TestCachedProviderMemoizes(t *testing.T) {
	fake := &fakeProvider{values: map[string]string{"KEY": "v1"}}
	cached := NewCachedProvider(fake, time.Minute)

	for range 3 {
		value, err := cached.Get(context.Background(), "KEY")
		require.NoError(t, err)
		assert.Equal(t, "v1", value)
	}
	assert.Equal(t, 1, fake.calls, "inner provider should be hit once")
}

func TestCachedProviderDoesNotCacheErrors(t *testing.T) {
	fake := &fakeProvider{}
	cached := NewCachedProvider(fake, time.Minute)

	_, err := cached.Get(context.Background(), "ABSENT")
	require.Error(t, err)
	_, err = cached.Get(context.Background(), "ABSENT")
	require.Error(t, err)
	assert.Equal(t, 2, fake.calls)
}
