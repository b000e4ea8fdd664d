package auth

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateKeyHex returns a hex-encoded random key of n bytes, suitable for
// SESSION_HASH_KEY and SESSION_BLOCK_KEY.
func GenerateKeyHex(n int) (string, error) {
	b, err := RandomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
