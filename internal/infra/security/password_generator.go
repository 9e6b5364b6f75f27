package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GeneratePassword returns a URL-safe random secret built from byteLength random bytes,
// suffixed so it satisfies the default character-class rule.
func GeneratePassword(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf) + "!9a", nil
}
