// Package tokenizer provides size estimation for generation requests.
// The estimate gates admission; the provider's reported usage is what gets
// charged afterwards.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

var (
	encodingCache sync.Map
	defaultOnce   sync.Once
	defaultEnc    *tiktoken.Tiktoken
)

// CountTextTokens returns the token count for the given text using tiktoken.
// If no encoding is available, it falls back to a conservative len/4 estimate.
func CountTextTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc := getEncoding(model)
	if enc == nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateRequestUnits estimates the total size of a generation request:
// system instructions plus prompt plus the response budget the caller asked
// for. This is the deterministic cost measure used for caller-quota and
// provider-window admission.
func EstimateRequestUnits(model string, req *types.GenerationRequest) int64 {
	if req == nil {
		return 0
	}

	total := 0
	total += CountTextTokens(model, req.System)
	total += CountTextTokens(model, req.Prompt)

	// Small reply primer overhead used by common chat formats.
	total += 3

	if req.MaxOutputUnits > 0 {
		total += req.MaxOutputUnits
	}
	return int64(total)
}

func getEncoding(model string) *tiktoken.Tiktoken {
	base := normalizeModelName(model)
	if cached, ok := encodingCache.Load(base); ok {
		if enc, ok := cached.(*tiktoken.Tiktoken); ok {
			return enc
		}
		return getDefaultEncoding()
	}

	enc, err := tiktoken.EncodingForModel(base)
	if err != nil {
		enc = getDefaultEncoding()
	}
	if enc != nil {
		encodingCache.Store(base, enc)
	}
	return enc
}

func getDefaultEncoding() *tiktoken.Tiktoken {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			defaultEnc = enc
		}
	})
	return defaultEnc
}

func normalizeModelName(model string) string {
	if model == "" {
		return model
	}
	if idx := strings.LastIndex(model, "/"); idx >= 0 && idx+1 < len(model) {
		return model[idx+1:]
	}
	return model
}
