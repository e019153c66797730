package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// RefreshTokenPrefix marks opaque refresh tokens so they are
	// distinguishable from session JWTs in logs and bug reports.
	RefreshTokenPrefix = "qdr_"

	// RestoreCodePrefix marks one-time password restoration codes.
	RestoreCodePrefix = "qdc_"

	tokenBytes = 32
)

// GenerateRefreshToken returns a new opaque refresh token and its SHA-256 hash.
// Only the hash is persisted; the plaintext token goes to the client once.
func GenerateRefreshToken() (token string, hash []byte, err error) {
	return generateToken(RefreshTokenPrefix)
}

// GenerateRestoreCode returns a new one-time restoration code and its SHA-256 hash.
func GenerateRestoreCode() (code string, hash []byte, err error) {
	return generateToken(RestoreCodePrefix)
}

func generateToken(prefix string) (token string, hash []byte, err error) {
	randomBytes := make([]byte, tokenBytes)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token = prefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	hash = HashToken(token)

	return token, hash, nil
}

// HashToken hashes a refresh token or restoration code for storage and lookup.
func HashToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// ValidateTokenFormat checks that a token carries the expected prefix and
// decodes to the expected number of random bytes.
func ValidateTokenFormat(token, prefix string) bool {
	if len(token) < len(prefix) {
		return false
	}

	if token[:len(prefix)] != prefix {
		return false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token[len(prefix):])
	if err != nil {
		return false
	}

	return len(decoded) == tokenBytes
}
