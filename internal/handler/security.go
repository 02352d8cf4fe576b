package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/till/internal/domain/auth"
	"github.com/xenking/till/pkg/httpmiddleware"
)

// APIKeyHeader carries the client API key.
const APIKeyHeader = "X-API-Key"

// Scopes granted to API keys. A key with no scopes may call everything.
const (
	ScopeCatalogue = "catalogue"
	ScopeEntry     = "entry"
)

var errUnauthorized = errors.New("unauthorized")

// Security authenticates requests with HMAC-SHA256 hashed API keys.
type Security struct {
	keys   auth.Repository
	pepper []byte
}

// NewSecurity returns a Security using the given key store and pepper.
func NewSecurity(keys auth.Repository, pepper []byte) *Security {
	return &Security{keys: keys, pepper: pepper}
}

// Authenticate resolves a raw key. The stored hash is compared in constant
// time against the computed one in case the store matched loosely.
func (s *Security) Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error) {
	if key == "" {
		return nil, errUnauthorized
	}
	hash := auth.HashKey(s.pepper, key)
	info, err := s.keys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, errUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	want, err := hex.DecodeString(hash)
	if err != nil {
		return nil, errUnauthorized
	}
	got, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(want, got) != 1 {
		return nil, errUnauthorized
	}
	return info, nil
}

// Require wraps next so it only runs for keys holding scope.
func (s *Security) Require(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		switch {
		case errors.Is(err, errUnauthorized):
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		case err != nil:
			writeError(w, r, err)
			return
		case !info.HasScope(scope):
			httpmiddleware.WriteError(w, http.StatusForbidden, "api key lacks scope "+scope)
			return
		}

		lg := zctx.From(r.Context()).With(zap.String("api_key", info.Name))
		next(w, r.WithContext(zctx.Base(r.Context(), lg)))
	}
}
