package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix is the fixed prefix every arena API key carries.
// Full format: moltarena_sk_<base64url of 32 random bytes>.
const KeyPrefix = "moltarena_sk_"

// bcryptCost is the fixed cost factor for key hashing.
const bcryptCost = 12

// GenerateKey returns a new random API key.
func GenerateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating key material: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// ExtractBearer pulls the API key out of "Bearer <key>" credential text.
// Returns "" if the text is not a bearer credential or the key does not
// carry the arena prefix.
func ExtractBearer(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	if !strings.HasPrefix(parts[1], KeyPrefix) {
		return ""
	}
	return parts[1]
}

// HashKey hashes an API key for storage.
func HashKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing key: %w", err)
	}
	return string(h), nil
}

// VerifyKey reports whether key matches hash. Comparison is timing-safe.
func VerifyKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
