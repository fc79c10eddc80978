// Package auth validates inbound API keys against configured SHA-256 key hashes.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// APIKeyHeader is accepted as an alternative to a bearer token.
const APIKeyHeader = "X-API-Key"

// Key is a configured credential. Only the hash is ever held in memory.
type Key struct {
	Hash        string
	Description string
}

// Authenticator validates API keys
type Authenticator struct {
	keys map[string]*Key // keyhash -> key
}

// NewAuthenticator creates an authenticator for keys. Hashes are matched case-insensitively.
func NewAuthenticator(keys []Key) *Authenticator {
	a := &Authenticator{
		keys: make(map[string]*Key, len(keys)),
	}
	for i := range keys {
		k := keys[i]
		k.Hash = strings.ToLower(k.Hash)
		a.keys[k.Hash] = &k
	}
	return a
}

// Enabled reports whether any key is configured. With no keys every request is allowed.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.keys) > 0
}

// ValidateAPIKey validates an API key and returns the matching configured key
func (a *Authenticator) ValidateAPIKey(apiKey string) (*Key, error) {
	keyHash := HashAPIKey(apiKey)

	k, ok := a.keys[keyHash]
	if !ok {
		return nil, fmt.Errorf("invalid API key")
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(keyHash), []byte(k.Hash)) != 1 {
		return nil, fmt.Errorf("invalid API key")
	}
	return k, nil
}

// ExtractAPIKey extracts the API key from the Authorization header, falling back to X-API-Key
func ExtractAPIKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if key := r.Header.Get(APIKeyHeader); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("missing Authorization header")
	}

	// Support "Bearer <key>" format
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return parts[1], nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}

type contextKey struct{}

// WithKey returns a context carrying the authenticated key.
func WithKey(ctx context.Context, k *Key) context.Context {
	return context.WithValue(ctx, contextKey{}, k)
}

// KeyFromContext returns the authenticated key, or nil when auth is disabled.
func KeyFromContext(ctx context.Context) *Key {
	k, _ := ctx.Value(contextKey{}).(*Key)
	return k
}
