package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserIDFromContext returns the authenticated user id set by APIKeyAuth.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// APIKeyAuth returns middleware that resolves the caller's identity from an
// API key and stores the mapped user id in the request context. The key is
// read from X-API-Key or an Authorization: Bearer header.
func APIKeyAuth(keys map[string]uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := requestAPIKey(r)
			if apiKey == "" {
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				unauthorized(w, "missing API key", "AUTH_MISSING_KEY")
				return
			}

			userID, ok := lookupAPIKey(apiKey, keys)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				unauthorized(w, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// lookupAPIKey matches the provided key against every configured key with
// constant-time comparison, so the response time does not reveal which key
// matched or how close a guess came.
func lookupAPIKey(key string, keys map[string]uuid.UUID) (uuid.UUID, bool) {
	var matched uuid.UUID
	found := 0
	for candidate, userID := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1 {
			matched = userID
			found = 1
		}
	}
	return matched, found == 1
}

func unauthorized(w http.ResponseWriter, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"ok":false,"error":"` + msg + `","code":"` + code + `"}`))
}
