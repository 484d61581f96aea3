package utils

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const jwtSecretBytes = 32

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read %d random bytes: %w", n, err)
	}
	return b, nil
}

// GenerateSecret returns n random bytes hex encoded
func GenerateSecret(n int) (string, error) {
	b, err := randomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateJWTSecrets returns independent 256-bit access and refresh signing secrets
func GenerateJWTSecrets() (access, refresh string, err error) {
	if access, err = GenerateSecret(jwtSecretBytes); err != nil {
		return "", "", err
	}
	if refresh, err = GenerateSecret(jwtSecretBytes); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// GeneratePassword returns a URL-safe random password of exactly length characters
func GeneratePassword(length int) (string, error) {
	if length < 8 {
		return "", fmt.Errorf("password length must be at least 8, got %d", length)
	}
	b, err := randomBytes(length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}
