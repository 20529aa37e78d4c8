package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashData returns the lowercase hex SHA-256 digest of data. The digest
// doubles as the DHT lookup key and as the integrity check on retrieval.
func HashData(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
