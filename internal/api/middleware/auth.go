package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/gmanfredi/framewatch/internal/api/response"
	"github.com/gmanfredi/framewatch/internal/store"
)

const keyPrefixLen = 8

// Auth provides authentication and scope-checking middleware.
type Auth struct {
	store store.Store
}

// NewAuth creates a new Auth middleware.
func NewAuth(s store.Store) *Auth {
	return &Auth{store: s}
}

// Authenticate validates the Bearer token, looks up the API key, and sets
// user_id, key_prefix, and scopes in the request context. Requests without
// a valid key are rejected.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		r, ok := a.authenticate(w, r, rawKey)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OptionalAuthenticate behaves like Authenticate when an Authorization
// header is present, but lets requests without one through as anonymous.
// Video jobs do not require an account; API keys only scope ownership.
func (a *Auth) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		r, ok := a.authenticate(w, r, rawKey)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves rawKey to an API key record and attaches the
// identity to the request context. Writes the error response itself when
// validation fails.
func (a *Auth) authenticate(w http.ResponseWriter, r *http.Request, rawKey string) (*http.Request, bool) {
	if len(rawKey) < keyPrefixLen {
		response.Error(w, http.StatusUnauthorized,
			"INVALID_TOKEN", "Invalid API key format", nil)
		return nil, false
	}

	prefix := rawKey[:keyPrefixLen]

	keys, err := a.store.GetAPIKeyByPrefix(r.Context(), prefix)
	if err != nil {
		response.Error(w, http.StatusInternalServerError,
			"INTERNAL_ERROR", "Failed to validate API key", nil)
		return nil, false
	}

	// Find matching key by bcrypt comparison
	for _, key := range keys {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) == nil {
			ctx := r.Context()
			ctx = SetUserID(ctx, key.UserID)
			ctx = setKeyPrefix(ctx, prefix)
			ctx = setScopes(ctx, key.Scopes)

			// Update last_used_at async
			go a.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)

			return r.WithContext(ctx), true
		}
	}

	response.Error(w, http.StatusUnauthorized,
		"INVALID_TOKEN", "Invalid API key", nil)
	return nil, false
}

// RequireScope returns middleware that checks whether the authenticated
// API key has the specified scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes := getScopes(r)
			for _, s := range scopes {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
