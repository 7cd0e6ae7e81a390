package shield

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// APIKey rejects requests that do not present a key matching the bcrypt
// hash, either as "Authorization: Bearer <key>" or "X-API-Key: <key>".
// Accepted keys are remembered by digest so bcrypt runs once per distinct
// key rather than once per request.
func APIKey(hash string, publicPrefixes ...string) func(http.Handler) http.Handler {
	var accepted sync.Map // [32]byte -> struct{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range publicPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			key := presentedKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key")
				return
			}
			digest := sha256.Sum256([]byte(key))
			if _, ok := accepted.Load(digest); !ok {
				if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
					GetLogger(r.Context()).Warn("apikey: rejected")
					writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
					return
				}
				accepted.Store(digest, struct{}{})
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashAPIKey returns the bcrypt hash to put in the configuration.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func presentedKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
