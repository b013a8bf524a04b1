package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// HMACSHA256Hex returns the lowercase hex HMAC-SHA256 of message keyed with key.
func HMACSHA256Hex(key, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// SHA256Hex returns the lowercase hex SHA-256 digest of message.
func SHA256Hex(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// EqualSignatures compares two hex signatures case-insensitively in constant time.
func EqualSignatures(expected, provided string) bool {
	a := []byte(strings.ToLower(strings.TrimSpace(expected)))
	b := []byte(strings.ToLower(strings.TrimSpace(provided)))
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// RandomHexUpper returns n uppercase hex characters from crypto/rand.
func RandomHexUpper(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf))[:n], nil
}
