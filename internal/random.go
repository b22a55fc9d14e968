package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

const refreshSecretSize = 48

// TokenHash is the sha256 digest of an opaque refresh-token plaintext.
// Stores persist only the hash; the plaintext exists solely in the
// response returned to the client.
type TokenHash [32]byte

// NewRefreshToken generates a fresh opaque refresh-token plaintext and
// its storage hash. The plaintext is base64url without padding.
func NewRefreshToken() (string, TokenHash, error) {
	var secret [refreshSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", TokenHash{}, err
	}

	plaintext := base64.RawURLEncoding.EncodeToString(secret[:])
	return plaintext, HashToken(plaintext), nil
}

// HashToken maps a refresh-token plaintext to its storage hash.
func HashToken(plaintext string) TokenHash {
	return sha256.Sum256([]byte(plaintext))
}

// ValidateTokenShape rejects strings that cannot be a refresh token we
// issued, before any store round trip.
func ValidateTokenShape(plaintext string) error {
	raw, err := base64.RawURLEncoding.DecodeString(plaintext)
	if err != nil {
		return err
	}
	if len(raw) != refreshSecretSize {
		return errors.New("invalid refresh token size")
	}
	return nil
}

// Equal compares two token hashes in constant time.
func (h TokenHash) Equal(other TokenHash) bool {
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}
