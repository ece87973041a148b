package middleware

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gitscribe/gitscribe/internal/database"
	"github.com/gitscribe/gitscribe/internal/handler"
	"github.com/gitscribe/gitscribe/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createAccount(t *testing.T, accounts *store.AccountStore, githubID int64) int64 {
	t.Helper()
	a, err := accounts.GetOrCreate(store.Identity{GitHubID: githubID, Username: "user", Email: "user@example.com"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a.ID
}

func echoAccountID() (http.Handler, *int64) {
	var got int64
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = handler.AccountIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}), &got
}

func TestRequireSessionValid(t *testing.T) {
	db := setupTestDB(t)
	accounts := store.NewAccountStore(db)
	sessions := store.NewSessionStore(db)
	accountID := createAccount(t, accounts, 42)
	sess, err := sessions.Create(accountID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	next, got := echoAccountID()
	mw := RequireSession(sessions)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if *got != accountID {
		t.Errorf("account id in context = %d, want %d", *got, accountID)
	}
}

func TestRequireSessionMissingCookie(t *testing.T) {
	db := setupTestDB(t)
	sessions := store.NewSessionStore(db)

	next, _ := echoAccountID()
	mw := RequireSession(sessions)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireSessionUnknownToken(t *testing.T) {
	db := setupTestDB(t)
	sessions := store.NewSessionStore(db)

	next, _ := echoAccountID()
	mw := RequireSession(sessions)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "bogus"})
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAPIKeyAuthValid(t *testing.T) {
	db := setupTestDB(t)
	accounts := store.NewAccountStore(db)
	keys := store.NewAPIKeyStore(db)
	accountID := createAccount(t, accounts, 42)
	created, secret, err := keys.Create(accountID, "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}

	next, got := echoAccountID()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := APIKeyAuth(keys, logger)(next)

	req := httptest.NewRequest(http.MethodPost, "/v1/generate", nil)
	req.Header.Set("Authorization", "Bearer "+secret)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if *got != accountID {
		t.Errorf("account id in context = %d, want %d", *got, accountID)
	}

	k, _ := keys.GetByID(created.ID)
	if k.LastUsedAt == nil {
		t.Error("expected last_used_at to be touched")
	}
}

func TestAPIKeyAuthUniformFailures(t *testing.T) {
	db := setupTestDB(t)
	accounts := store.NewAccountStore(db)
	keys := store.NewAPIKeyStore(db)
	accountID := createAccount(t, accounts, 42)
	created, _, err := keys.Create(accountID, "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if deleted, err := keys.Delete(created.ID, accountID); err != nil || !deleted {
		t.Fatalf("delete key: deleted=%v err=%v", deleted, err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next, _ := echoAccountID()
	mw := APIKeyAuth(keys, logger)(next)

	// Missing header, malformed credential, and a revoked (formerly valid)
	// key must be indistinguishable to the caller.
	cases := map[string]string{
		"missing":   "",
		"malformed": "Bearer not-a-key",
		"revoked":   "Bearer " + store.KeyPrefix + "0000000000000000000000000000000000000000",
	}
	var bodies []string
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/generate", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
	}
	for _, b := range bodies[1:] {
		if b != bodies[0] {
			t.Errorf("failure responses differ: %q vs %q", bodies[0], b)
		}
	}
}
