package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Auth returns middleware that checks the operator API key sent as a Bearer
// token or in X-API-Key. The key is compared in constant time against
// apiKey, or against apiKeyHash with bcrypt. Both empty disables the check.
// Paths in open are served without a key.
func Auth(apiKey, apiKeyHash string, open ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" && apiKeyHash == "" {
				next.ServeHTTP(w, r)
				return
			}
			for _, p := range open {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}
			if !validKey(token, apiKey, apiKeyHash) {
				writeUnauthorized(w, "invalid authentication token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validKey(token, apiKey, apiKeyHash string) bool {
	if apiKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) == 1 {
		return true
	}
	if apiKeyHash != "" && bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(token)) == nil {
		return true
	}
	return false
}

// extractToken reads "Authorization: Bearer <token>", then X-API-Key. The
// WebSocket endpoint may also pass the key as ?api_key= since browsers
// cannot set headers on upgrade requests.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	if r.URL.Path == "/ws" {
		return r.URL.Query().Get("api_key")
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
