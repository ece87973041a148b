package usage

import (
	"database/sql"
	"sync"
	"testing"

	"github.com/gitscribe/gitscribe/internal/database"
	"github.com/gitscribe/gitscribe/internal/model"
	"github.com/gitscribe/gitscribe/internal/store"
)

func setup(t *testing.T) (*sql.DB, *store.AccountStore, *Recorder) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	accounts := store.NewAccountStore(db)
	events := store.NewEventStore(db)
	return db, accounts, NewRecorder(db, events)
}

func createAccount(t *testing.T, accounts *store.AccountStore, githubID int64) *model.Account {
	t.Helper()
	a, err := accounts.GetOrCreate(store.Identity{GitHubID: githubID, Username: "user", Email: "user@example.com"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func apiCallsUsed(t *testing.T, db *sql.DB, accountID int64) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT api_calls_used FROM accounts WHERE id = ?`, accountID).Scan(&n); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return n
}

func TestRecordGenerationWeb(t *testing.T) {
	db, accounts, rec := setup(t)
	a := createAccount(t, accounts, 42)

	ms := int64(1200)
	ev, err := rec.RecordGeneration(a.ID, model.DocReadme, "octo/repo", model.ChannelWeb, &ms)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ev == nil || ev.ID == 0 {
		t.Fatal("expected a persisted event")
	}
	if ev.Channel != model.ChannelWeb || ev.DocType != model.DocReadme || ev.TargetRef != "octo/repo" {
		t.Errorf("event = %+v", ev)
	}
	if ev.DurationMs == nil || *ev.DurationMs != 1200 {
		t.Errorf("duration_ms = %v, want 1200", ev.DurationMs)
	}

	// Web generations never touch the API counter.
	if n := apiCallsUsed(t, db, a.ID); n != 0 {
		t.Errorf("api_calls_used = %d, want 0", n)
	}
}

func TestRecordGenerationAPIIncrementsCounter(t *testing.T) {
	db, accounts, rec := setup(t)
	a := createAccount(t, accounts, 42)

	if _, err := rec.RecordGeneration(a.ID, model.DocChangelog, "octo/repo", model.ChannelAPI, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if n := apiCallsUsed(t, db, a.ID); n != 1 {
		t.Errorf("api_calls_used = %d, want 1", n)
	}
}

func TestRecordGenerationRejectsInvalidInput(t *testing.T) {
	_, accounts, rec := setup(t)
	a := createAccount(t, accounts, 42)

	if _, err := rec.RecordGeneration(a.ID, model.DocType("poem"), "octo/repo", model.ChannelWeb, nil); err == nil {
		t.Error("expected error for unknown doc type")
	}
	if _, err := rec.RecordGeneration(a.ID, model.DocReadme, "octo/repo", model.Channel("fax"), nil); err == nil {
		t.Error("expected error for unknown channel")
	}
}

func TestRecordGenerationConcurrent(t *testing.T) {
	db, accounts, rec := setup(t)
	a := createAccount(t, accounts, 42)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rec.RecordGeneration(a.ID, model.DocReadme, "octo/repo", model.ChannelAPI, nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent record: %v", err)
	}

	if got := apiCallsUsed(t, db, a.ID); got != n {
		t.Errorf("api_calls_used = %d, want %d", got, n)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM generation_events WHERE account_id = ?`, a.ID).Scan(&rows); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if rows != n {
		t.Errorf("ledger rows = %d, want %d", rows, n)
	}
}

func TestTrackActionByEventID(t *testing.T) {
	_, accounts, rec := setup(t)
	a := createAccount(t, accounts, 42)

	ev, err := rec.RecordGeneration(a.ID, model.DocReadme, "octo/repo", model.ChannelWeb, nil)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	tracked, err := rec.TrackAction(a.ID, ev.ID, "", "", model.ActionCopied)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !tracked {
		t.Error("expected tracked=true")
	}
}

func TestTrackActionWrongOwner(t *testing.T) {
	_, accounts, rec := setup(t)
	a := createAccount(t, accounts, 42)
	b := createAccount(t, accounts, 43)

	ev, err := rec.RecordGeneration(a.ID, model.DocReadme, "octo/repo", model.ChannelWeb, nil)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	tracked, err := rec.TrackAction(b.ID, ev.ID, "", "", model.ActionCopied)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if tracked {
		t.Error("another account's event must not be trackable")
	}
}

func TestTrackActionFallbackMatch(t *testing.T) {
	_, accounts, rec := setup(t)
	a := createAccount(t, accounts, 42)

	if _, err := rec.RecordGeneration(a.ID, model.DocReadme, "octo/repo", model.ChannelWeb, nil); err != nil {
		t.Fatalf("record first: %v", err)
	}
	latest, err := rec.RecordGeneration(a.ID, model.DocReadme, "octo/repo", model.ChannelWeb, nil)
	if err != nil {
		t.Fatalf("record second: %v", err)
	}

	tracked, err := rec.TrackAction(a.ID, 0, "octo/repo", model.DocReadme, model.ActionDownloaded)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !tracked {
		t.Fatal("expected fallback match")
	}

	got, err := rec.events.GetByID(latest.ID)
	if err != nil {
		t.Fatalf("reload event: %v", err)
	}
	if !got.Downloaded {
		t.Error("most recent matching event should carry the flag")
	}
}

func TestTrackActionNoMatch(t *testing.T) {
	_, accounts, rec := setup(t)
	a := createAccount(t, accounts, 42)

	tracked, err := rec.TrackAction(a.ID, 0, "octo/other", model.DocReadme, model.ActionCopied)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if tracked {
		t.Error("expected tracked=false for no match")
	}
}

func TestTrackActionUnknownAction(t *testing.T) {
	_, accounts, rec := setup(t)
	a := createAccount(t, accounts, 42)

	if _, err := rec.TrackAction(a.ID, 0, "octo/repo", model.DocReadme, model.Action("starred")); err == nil {
		t.Error("expected error for unknown action")
	}
}
