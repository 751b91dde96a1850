// Package idgen derives content-addressed identifiers for memory records.
package idgen

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// HashPrefix is the fixed prefix for memory record hash ids (spec §3:
// "clude-<8 hex>").
const HashPrefix = "clude"

// HashLen is the number of hex characters kept from the SHA-256 digest.
const HashLen = 8

// RecordHash derives the content-addressed id for a memory record from
// its kind, summary, and creation time, matching spec §3's
// SHA-256(type || summary || createdAt) construction. The same
// (kind, summary, createdAt) triple always yields the same id, which is
// what lets Ingestor.store de-duplicate identical observations.
func RecordHash(kind, summary string, createdAt time.Time) string {
	content := kind + "|" + summary + "|" + createdAt.UTC().Format(time.RFC3339Nano)
	sum := sha256.Sum256([]byte(content))
	return HashPrefix + "-" + hex.EncodeToString(sum[:])[:HashLen]
}
