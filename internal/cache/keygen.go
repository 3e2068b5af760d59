package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprintPrefix namespaces every fingerprint this process produces.
const fingerprintPrefix = "ytkm"

// Fingerprint builds a deterministic cache key from the semantically
// relevant parts of an operation. The category travels in clear text so the
// cache can derive the TTL; the parts are hashed.
// Format: ytkm:<category>:sha256(part1|part2|...).
func Fingerprint(category Category, parts ...string) string {
	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(p)
	}

	hash := sha256.Sum256([]byte(sb.String()))
	hashHex := hex.EncodeToString(hash[:])

	var key strings.Builder
	key.Grow(len(fingerprintPrefix) + len(category) + len(hashHex) + 2)
	key.WriteString(fingerprintPrefix)
	key.WriteByte(':')
	key.WriteString(string(category))
	key.WriteByte(':')
	key.WriteString(hashHex)
	return key.String()
}

// CategoryOf extracts the category segment from a fingerprint. Unknown or
// malformed fingerprints map to the empty category, which resolves to the
// default TTL.
func CategoryOf(fingerprint string) Category {
	rest, ok := strings.CutPrefix(fingerprint, fingerprintPrefix+":")
	if !ok {
		return ""
	}
	category, _, ok := strings.Cut(rest, ":")
	if !ok {
		return ""
	}
	return Category(category)
}
