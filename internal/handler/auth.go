package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gitscribe/gitscribe/internal/store"
)

const (
	sessionCookieName = "gitscribe_session"
	stateCookieName   = "gitscribe_oauth_state"
)

// IdentityProvider abstracts the OAuth flow so tests can stub it.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (store.Identity, error)
}

type AuthHandler struct {
	provider IdentityProvider
	accounts *store.AccountStore
	sessions *store.SessionStore
	baseURL  string
	logger   *slog.Logger
}

func NewAuthHandler(
	provider IdentityProvider,
	accounts *store.AccountStore,
	sessions *store.SessionStore,
	baseURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		accounts: accounts,
		sessions: sessions,
		baseURL:  baseURL,
		logger:   logger,
	}
}

// Login redirects the browser to the provider's authorization page.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	state := hex.EncodeToString(stateBytes)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// Callback completes the OAuth flow. Account creation is idempotent: a
// repeat login with the same GitHub identity returns the existing account.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	ident, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth exchange", "error", err)
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	account, err := h.accounts.GetOrCreate(ident)
	if err != nil {
		h.logger.Error("get or create account", "github_id", ident.GitHubID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if account.DisabledAt != nil {
		http.Error(w, "account disabled", http.StatusForbidden)
		return
	}

	sess, err := h.sessions.Create(account.ID)
	if err != nil {
		h.logger.Error("create session", "account_id", account.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.baseURL+"/dashboard", http.StatusSeeOther)
}

// Logout destroys the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		sess, err := h.sessions.GetByToken(cookie.Value)
		if err == nil && sess != nil {
			h.sessions.Delete(sess.ID)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}
