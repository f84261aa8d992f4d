package jobs

import (
	"crypto/sha256"
	"encoding/hex"
)

// InputHash fingerprints a normalized (trimmed) input. It is the cache key
// shared by every job carrying the same content.
func InputHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
