package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gitscribe/gitscribe/internal/handler"
	"github.com/gitscribe/gitscribe/internal/store"
)

const sessionCookieName = "gitscribe_session"

// RequireSession validates the session cookie and populates the account ID
// in context.
func RequireSession(sessions *store.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w, "authentication required")
				return
			}

			sess, err := sessions.GetByToken(cookie.Value)
			if err != nil || sess == nil {
				unauthorized(w, "authentication required")
				return
			}

			ctx := handler.WithAccountID(r.Context(), sess.AccountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyAuth is the API-channel gate. It resolves a bearer credential to
// an account and nothing more; entitlement is the evaluator's job. Every
// failure mode returns the same generic response so callers cannot probe
// whether a key ever existed.
func APIKeyAuth(keys *store.APIKeyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := bearerToken(r)
			// Structural check before any storage lookup.
			if !store.HasKeyPrefix(credential) {
				unauthorized(w, "invalid API key")
				return
			}

			key, err := keys.GetByDigest(store.Digest(credential))
			if err != nil {
				logger.Error("api key lookup", "error", err)
				unauthorized(w, "invalid API key")
				return
			}
			if key == nil {
				unauthorized(w, "invalid API key")
				return
			}

			// Best effort; a failed timestamp update never fails the request.
			if err := keys.TouchLastUsed(key.ID, time.Now().UTC()); err != nil {
				logger.Warn("touch api key", "key_id", key.ID, "error", err)
			}

			ctx := handler.WithAccountID(r.Context(), key.AccountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
