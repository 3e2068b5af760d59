package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint(CategorySearch, "golang", "relevance", "10")
	b := Fingerprint(CategorySearch, "golang", "relevance", "10")
	assert.Equal(t, a, b)

	c := Fingerprint(CategorySearch, "golang", "date", "10")
	assert.NotEqual(t, a, c, "different parts must produce different keys")

	d := Fingerprint(CategoryDetails, "golang", "relevance", "10")
	assert.NotEqual(t, a, d, "different categories must produce different keys")
}

func TestFingerprintFormat(t *testing.T) {
	fp := Fingerprint(CategoryTranscripts, "dQw4w9WgXcQ", "en")

	parts := strings.SplitN(fp, ":", 3)
	assert.Len(t, parts, 3)
	assert.Equal(t, "ytkm", parts[0])
	assert.Equal(t, string(CategoryTranscripts), parts[1])
	assert.Len(t, parts[2], 64, "payload hash is hex-encoded sha256")
}

func TestFingerprintSeparatorCollision(t *testing.T) {
	// Adjacent parts must not merge into the same hash input.
	a := Fingerprint(CategorySearch, "ab", "c")
	b := Fingerprint(CategorySearch, "a", "bc")
	assert.NotEqual(t, a, b)
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name        string
		fingerprint string
		want        Category
	}{
		{"search", Fingerprint(CategorySearch, "q"), CategorySearch},
		{"generation", Fingerprint(CategoryGeneration, "p"), CategoryGeneration},
		{"foreign prefix", "other:search:abc", ""},
		{"missing hash segment", "ytkm:search", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryOf(tt.fingerprint))
		})
	}
}
