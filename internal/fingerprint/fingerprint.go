// Package fingerprint turns a client id and a request payload into a stable
// identity used as the deduplication key.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Generate returns the lowercase hex SHA-256 of clientID + ":" + Canonicalize(p).
// clientID is expected to be non-empty; callers validate it.
func Generate(clientID string, p Payload) string {
	sum := sha256.Sum256([]byte(clientID + ":" + Canonicalize(p)))
	return hex.EncodeToString(sum[:])
}
