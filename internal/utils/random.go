package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// RandomToken returns a base64url (unpadded) string built from n random bytes.
// 32 bytes yields a 43 character opaque token.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[utils RandomToken] rand.Read: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
