package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const refreshSecretSize = 32

// NewRefreshSecret returns 256 bits of cryptographically random material
// encoded as unpadded base64url. This is the raw refresh-token value handed
// to the client; it is never persisted.
func NewRefreshSecret() (string, error) {
	var secret [refreshSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// HashRefreshSecret returns the hex-encoded SHA-256 digest of a raw refresh
// token. Only this digest is stored; lookups hash the presented token and
// compare digests.
func HashRefreshSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
