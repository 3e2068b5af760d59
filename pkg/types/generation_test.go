package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationRequestValidate(t *testing.T) {
	creativity := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		req     GenerationRequest
		wantErr bool
	}{
		{"minimal", GenerationRequest{Prompt: "summarize this"}, false},
		{"full", GenerationRequest{
			System:         "you are concise",
			Prompt:         "summarize this",
			MaxOutputUnits: 512,
			Creativity:     creativity(0.3),
			Shape:          OutputMarkdown,
			ModelHint:      "gemini-1.5-flash",
		}, false},
		{"empty prompt", GenerationRequest{Prompt: "   "}, true},
		{"negative max units", GenerationRequest{Prompt: "x", MaxOutputUnits: -1}, true},
		{"creativity out of range", GenerationRequest{Prompt: "x", Creativity: creativity(2.5)}, true},
		{"unknown shape", GenerationRequest{Prompt: "x", Shape: "yaml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTranscriptText(t *testing.T) {
	tr := Transcript{
		VideoID:  "dQw4w9WgXcQ",
		Language: "en",
		Segments: []TranscriptSegment{
			{Text: "never gonna"},
			{Text: "give you up"},
		},
	}
	require.Equal(t, "never gonna give you up", tr.Text())

	empty := Transcript{}
	assert.Equal(t, "", empty.Text())
}
