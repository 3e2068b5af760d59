package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func describeLabels(t *testing.T, c prometheus.Collector) []string {
	t.Helper()

	descCh := make(chan *prometheus.Desc, 8)
	c.Describe(descCh)
	close(descCh)

	var desc *prometheus.Desc
	for d := range descCh {
		desc = d
		break
	}
	if desc == nil {
		t.Fatalf("no descriptor returned")
	}

	s := desc.String()
	start := strings.Index(s, "variableLabels: {")
	if start < 0 {
		return nil
	}
	start += len("variableLabels: {")
	end := strings.Index(s[start:], "}")
	if end < 0 {
		t.Fatalf("failed to parse descriptor: %s", s)
	}
	raw := strings.TrimSpace(s[start : start+end])
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func assertLabelsEqual(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("labels mismatch\ngot:  %v\nwant: %v", got, want)
	}
}

func TestLabelSchema_LowCardinality(t *testing.T) {
	assertLabelsEqual(t, describeLabels(t, GenerationRequests), []string{
		"provider", "model", "status",
	})

	assertLabelsEqual(t, describeLabels(t, GenerationFailures), []string{
		"provider", "error_type",
	})

	assertLabelsEqual(t, describeLabels(t, GenerationLatency), []string{
		"provider", "model",
	})

	assertLabelsEqual(t, describeLabels(t, CacheHits), []string{
		"category",
	})

	assertLabelsEqual(t, describeLabels(t, CallerDenials), []string{
		"scope",
	})

	assertLabelsEqual(t, describeLabels(t, YouTubeCalls), []string{
		"endpoint", "status",
	})
}

func TestSanitizeModelLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "unknown"},
		{"gemini-1.5-flash", "gemini-1.5-flash"},
		{"claude-3-5-sonnet@20241022", "claude-3-5-sonnet"},
	}

	for _, tt := range tests {
		if got := sanitizeModelLabel(tt.in); got != tt.want {
			t.Errorf("sanitizeModelLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
