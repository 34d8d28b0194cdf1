package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key hashes s into the content-hash cache key spec §5 names ("keyed by
// content hash"), so callers never hold raw prompt/document text as a map
// key.
func Key(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
