// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// HexSum returns the hex-encoded SHA-256 digest of data. Artifact object
// names are derived from it so that one URL always maps to one object.
func HexSum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
