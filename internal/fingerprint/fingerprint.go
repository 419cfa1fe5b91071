// Package fingerprint computes content digests used for change detection.
//
// Fingerprints are content-only: no timestamps, versions or other volatile
// metadata enter the digest, so semantically identical content produces an
// identical fingerprint regardless of which side (local or remote) it was
// read from. Fingerprints are unkeyed: both sides must be able to reproduce
// them independently.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of content.
// Deterministic and side-effect free.
func Sum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Equal reports whether two fingerprints denote identical content.
// Two empty fingerprints are not considered equal: an empty fingerprint
// means "unknown", not "empty content".
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b
}
