package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Key derives a canonical deduplication key from request fields.
// json.Marshal sorts map keys, so field ordering never changes the
// key.
func Key(fields map[string]any) string {
	raw, err := json.Marshal(fields)
	if err != nil {
		// Fields are plain strings and numbers in practice; a
		// marshal failure degrades to no deduplication.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
