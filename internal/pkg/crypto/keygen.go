// Package crypto generates the secrets the library needs at install time.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// TokenSecretSize is the number of random bytes in a token secret.
	TokenSecretSize = 32

	// MinPasswordLength matches the account password rule.
	MinPasswordLength = 8

	// DefaultPasswordLength is used for generated initial passwords.
	DefaultPasswordLength = 16
)

// passwordChars avoids look-alike characters so passwords can be read aloud.
const passwordChars = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// ErrInvalidTokenSecret indicates a hex secret is malformed or too short.
var ErrInvalidTokenSecret = errors.New("invalid token secret: must be at least 64 hex characters (32 bytes)")

// GenerateTokenSecret returns a random 32-byte secret for signing session
// tokens, hex encoded.
func GenerateTokenSecret() (string, error) {
	key := make([]byte, TokenSecretSize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// ParseTokenSecret decodes a hex secret produced by GenerateTokenSecret.
func ParseTokenSecret(hexKey string) ([]byte, error) {
	hexKey = strings.TrimSpace(hexKey)
	if len(hexKey) < TokenSecretSize*2 {
		return nil, ErrInvalidTokenSecret
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTokenSecret, err)
	}
	return key, nil
}

// GeneratePassword returns a random password of the given length.
func GeneratePassword(length int) (string, error) {
	if length < MinPasswordLength {
		return "", fmt.Errorf("password length must be at least %d", MinPasswordLength)
	}
	return generateRandomString(length, passwordChars)
}

// generateRandomString generates a random string of the specified length
// using characters from the provided character set.
func generateRandomString(length int, charset string) (string, error) {
	result := make([]byte, length)
	charsetLen := len(charset)

	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	for i := 0; i < length; i++ {
		result[i] = charset[int(randomBytes[i])%charsetLen]
	}

	return string(result), nil
}
