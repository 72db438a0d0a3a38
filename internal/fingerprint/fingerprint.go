// Package fingerprint produces deterministic content hashes used as the
// import pipeline's idempotency keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Generate creates a SHA-256 digest of a normalized transaction.
// Format: SHA256("{date}|{amountCents}|{description}"), hex-encoded.
//
// Inputs must be the post-normalizer values (ISO date, integer cents), never
// raw row text, so two exports of the same statement with different column
// ordering still collide. Identical inputs always yield an identical digest.
func Generate(date string, amountCents int64, description string) string {
	input := fmt.Sprintf("%s|%d|%s", date, amountCents, description)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
