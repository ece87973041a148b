package store

import (
	"testing"
	"time"
)

func TestSessionCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	accounts := NewAccountStore(db)
	sessions := NewSessionStore(db)
	a := createTestAccount(t, accounts, 42, "alice")

	sess, err := sessions.Create(a.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(sess.Token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(sess.Token))
	}
	if !sess.ExpiresAt.After(time.Now().UTC().Add(29 * 24 * time.Hour)) {
		t.Errorf("expires_at = %v, want ~30 days out", sess.ExpiresAt)
	}

	got, err := sessions.GetByToken(sess.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got == nil || got.AccountID != a.ID {
		t.Fatalf("expected session for account %d, got %v", a.ID, got)
	}
}

func TestSessionGetByTokenUnknown(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionStore(db)

	got, err := sessions.GetByToken("nope")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown token")
	}
}

func TestSessionExpiredNotReturned(t *testing.T) {
	db := setupTestDB(t)
	accounts := NewAccountStore(db)
	sessions := NewSessionStore(db)
	a := createTestAccount(t, accounts, 42, "alice")

	sess, err := sessions.Create(a.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	past := time.Now().UTC().Add(-time.Hour)
	if _, err := db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`, past, sess.ID); err != nil {
		t.Fatalf("expire session: %v", err)
	}

	got, err := sessions.GetByToken(sess.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got != nil {
		t.Error("expired session must not be returned")
	}
}

func TestSessionDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	accounts := NewAccountStore(db)
	sessions := NewSessionStore(db)
	a := createTestAccount(t, accounts, 42, "alice")

	live, _ := sessions.Create(a.ID)
	stale, _ := sessions.Create(a.ID)
	past := time.Now().UTC().Add(-time.Hour)
	if _, err := db.Exec(`UPDATE sessions SET expires_at = ? WHERE id = ?`, past, stale.ID); err != nil {
		t.Fatalf("expire session: %v", err)
	}

	n, err := sessions.DeleteExpired()
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	got, _ := sessions.GetByToken(live.Token)
	if got == nil {
		t.Error("live session must survive cleanup")
	}
}

func TestSessionDeleteByAccountID(t *testing.T) {
	db := setupTestDB(t)
	accounts := NewAccountStore(db)
	sessions := NewSessionStore(db)
	a := createTestAccount(t, accounts, 42, "alice")
	b := createTestAccount(t, accounts, 43, "bob")

	aSess, _ := sessions.Create(a.ID)
	bSess, _ := sessions.Create(b.ID)

	if err := sessions.DeleteByAccountID(a.ID); err != nil {
		t.Fatalf("delete by account: %v", err)
	}

	if got, _ := sessions.GetByToken(aSess.Token); got != nil {
		t.Error("alice's session should be gone")
	}
	if got, _ := sessions.GetByToken(bSess.Token); got == nil {
		t.Error("bob's session must survive")
	}
}
