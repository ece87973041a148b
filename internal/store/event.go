package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gitscribe/gitscribe/internal/model"
)

// EventStore reads the generation ledger. All inserts go through the usage
// recorder, which also owns the API counter increment; this package only
// exposes the read paths and the one-way outcome-flag update.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func scanEvent(scanner interface{ Scan(...any) error }) (*model.GenerationEvent, error) {
	var e model.GenerationEvent
	var durationMs sql.NullInt64
	err := scanner.Scan(
		&e.ID, &e.AccountID, &e.DocType, &e.Channel, &e.TargetRef,
		&durationMs, &e.Copied, &e.Downloaded, &e.PRCreated, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if durationMs.Valid {
		e.DurationMs = &durationMs.Int64
	}
	return &e, nil
}

const eventCols = `id, account_id, doc_type, channel, target_ref, duration_ms, copied, downloaded, pr_created, created_at`

func (s *EventStore) GetByID(id int64) (*model.GenerationEvent, error) {
	row := s.db.QueryRow(`SELECT `+eventCols+` FROM generation_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// CountWebSince counts web-channel events for an account created at or
// after the given instant. Bind times in UTC so the stored text form
// compares consistently.
func (s *EventStore) CountWebSince(accountID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM generation_events WHERE account_id = ? AND channel = 'web' AND created_at >= ?`,
		accountID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count web events: %w", err)
	}
	return n, nil
}

// LatestMatch returns the most recent event for the account/target/doc-type
// combination, or nil if none exists. Used as the fallback for action
// tracking calls that do not carry an event ID.
func (s *EventStore) LatestMatch(accountID int64, targetRef string, docType model.DocType) (*model.GenerationEvent, error) {
	row := s.db.QueryRow(
		`SELECT `+eventCols+` FROM generation_events
		 WHERE account_id = ? AND target_ref = ? AND doc_type = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		accountID, targetRef, docType,
	)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest matching event: %w", err)
	}
	return e, nil
}

// MarkAction flips one outcome flag false->true. Re-marking an already set
// flag is a no-op. The column is chosen by switch, never interpolated from
// caller input.
func (s *EventStore) MarkAction(id int64, action model.Action) error {
	var col string
	switch action {
	case model.ActionCopied:
		col = "copied"
	case model.ActionDownloaded:
		col = "downloaded"
	case model.ActionPRCreated:
		col = "pr_created"
	default:
		return fmt.Errorf("mark action: unknown action %q", action)
	}
	_, err := s.db.Exec(
		`UPDATE generation_events SET `+col+` = 1 WHERE id = ? AND `+col+` = 0`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark action: %w", err)
	}
	return nil
}
