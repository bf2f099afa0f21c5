package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mochilink/mochi-sync/internal/domain"
	"github.com/mochilink/mochi-sync/internal/storage"
)

type contextKey string

const APIKeyContextKey contextKey = "api_key"

// Auth authenticates requests with a Bearer API key. Keys are stored as
// SHA-256 hashes; while no keys exist yet the configured bootstrap key is
// accepted so the first real key can be minted. The matched key is placed in
// the request context for executor attribution.
func Auth(store storage.Storage, bootstrapKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				denied(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}

			ctx := r.Context()

			count, err := store.CountAPIKeys(ctx)
			if err != nil {
				denied(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if count == 0 && bootstrapKey != "" &&
				subtle.ConstantTimeCompare([]byte(token), []byte(bootstrapKey)) == 1 {
				ctx = context.WithValue(ctx, APIKeyContextKey, &domain.APIKey{
					ID:   "bootstrap",
					Name: "Bootstrap Key",
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			key, err := store.GetAPIKeyByHash(ctx, hashAPIKey(token))
			if errors.Is(err, domain.ErrNotFound) {
				denied(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			if err != nil {
				denied(w, http.StatusInternalServerError, "internal server error")
				return
			}

			// Fire and forget; a failed stamp must not fail the request.
			go func() {
				_ = store.UpdateAPIKeyLastUsed(context.Background(), key.ID)
			}()

			ctx = context.WithValue(ctx, APIKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func denied(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.APIError{Code: status, Message: message})
}

// hashAPIKey hashes a key for storage lookup. Plain SHA-256 is enough: keys
// are high-entropy random strings, not passwords.
func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GetAPIKeyFromContext retrieves the authenticated API key, or nil.
func GetAPIKeyFromContext(ctx context.Context) *domain.APIKey {
	key, _ := ctx.Value(APIKeyContextKey).(*domain.APIKey)
	return key
}
