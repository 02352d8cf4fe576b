package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no active key matches a hash.
var ErrNotFound = errors.New("api key not found")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key grants scope. A key without scopes is
// unrestricted.
func (i *APIKeyInfo) HasScope(scope string) bool {
	if len(i.Scopes) == 0 {
		return true
	}
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// HashKey returns the hex HMAC-SHA256 of key keyed with pepper. Only hashes
// are stored.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
