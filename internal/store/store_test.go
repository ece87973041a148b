package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/gitscribe/gitscribe/internal/database"
	"github.com/gitscribe/gitscribe/internal/model"
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

func testIdentity(githubID int64, username string) Identity {
	return Identity{
		GitHubID:  githubID,
		Username:  username,
		Email:     username + "@example.com",
		Name:      "Test User",
		AvatarURL: "https://example.com/avatar.png",
	}
}

func createTestAccount(t *testing.T, s *AccountStore, githubID int64, username string) *model.Account {
	t.Helper()
	a, err := s.GetOrCreate(testIdentity(githubID, username))
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

// insertEvent seeds a ledger row directly; production inserts go through
// the usage recorder.
func insertEvent(t *testing.T, db *sql.DB, accountID int64, ch model.Channel, docType model.DocType, targetRef string, createdAt time.Time) int64 {
	t.Helper()
	result, err := db.Exec(
		`INSERT INTO generation_events (account_id, doc_type, channel, target_ref, created_at) VALUES (?, ?, ?, ?, ?)`,
		accountID, docType, ch, targetRef, createdAt.UTC(),
	)
	if err != nil {
		t.Fatalf("insert event: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}
