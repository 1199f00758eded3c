package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Key joins a namespace and key parts into a cache key, e.g.
// Key("pypi", "requests", "2.31.0") == "pypi:requests:2.31.0".
func Key(namespace string, parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}
