// Package sha256 computes document checksums.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements novel.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	return Sum(data), nil
}

// Sum returns the hex digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether data hashes to the hex digest want.
func Verify(data []byte, want string) bool {
	return want != "" && Sum(data) == want
}
