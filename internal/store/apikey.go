package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// API keys have the form dck_<userID>_<secret>. The user ID routes the
// lookup; only the bcrypt hash of the secret is stored.

const apiKeyPrefix = "dck"

// NewAPISecret generates a fresh key secret and its bcrypt hash.
func NewAPISecret() (secret, hash string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	secret = hex.EncodeToString(raw)

	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash secret: %w", err)
	}
	return secret, string(hashed), nil
}

// FormatAPIKey assembles the full key handed to the user.
func FormatAPIKey(userID, secret string) string {
	return fmt.Sprintf("%s_%s_%s", apiKeyPrefix, userID, secret)
}

// ParseAPIKey splits a presented key into user ID and secret.
func ParseAPIKey(key string) (userID, secret string, err error) {
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 || parts[0] != apiKeyPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("malformed API key")
	}
	return parts[1], parts[2], nil
}

// VerifySecret checks a presented secret against the stored hash.
func VerifySecret(hash, secret string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return fmt.Errorf("invalid API key")
	}
	return nil
}
