package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateAPIKey creates a new admin key and its hash.
// Returns: (realKey, hash) — only the hash is ever stored.
func GenerateAPIKey() (string, string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	randomString := hex.EncodeToString(bytes)
	realKey := fmt.Sprintf("rb_live_%s", randomString)

	return realKey, HashKey(realKey), nil
}

// HashKey derives the storable hash of an API key. The auth middleware uses
// it to look presented keys up by hash.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
