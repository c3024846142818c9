// Package auth resolves API keys to user identities. Requests without a key
// are served as anonymous guests; a valid key authenticates the request as
// the key's owning user.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// APIKeyInfo holds the identity data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  int64
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey computes the hex-encoded HMAC-SHA256 of an API key under pepper.
// Only this hash is ever stored or compared; the raw key exists client-side.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}
