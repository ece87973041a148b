// Package usage is the single write path into the generation ledger. It is
// called only after a generation has genuinely succeeded; a failed
// generation never reaches this package.
package usage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gitscribe/gitscribe/internal/model"
	"github.com/gitscribe/gitscribe/internal/store"
)

type Recorder struct {
	db     *sql.DB
	events *store.EventStore
	now    func() time.Time
}

func NewRecorder(db *sql.DB, events *store.EventStore) *Recorder {
	return &Recorder{db: db, events: events, now: time.Now}
}

// RecordGeneration appends one ledger event and, for the API channel,
// bumps the account's usage counter. Both writes commit in one
// transaction, and the increment is a single UPDATE statement so
// concurrent recordings for the same account never lose updates. Only
// this method writes api_calls_used; plan/limit fields belong to the
// plan transition handler.
func (r *Recorder) RecordGeneration(accountID int64, docType model.DocType, targetRef string, ch model.Channel, durationMs *int64) (*model.GenerationEvent, error) {
	if !docType.Valid() {
		return nil, fmt.Errorf("record generation: unknown doc type %q", docType)
	}
	if !ch.Valid() {
		return nil, fmt.Errorf("record generation: unknown channel %q", ch)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("record generation: %w", err)
	}
	defer tx.Rollback()

	now := r.now().UTC()
	result, err := tx.Exec(
		`INSERT INTO generation_events (account_id, doc_type, channel, target_ref, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		accountID, docType, ch, targetRef, durationMs, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert generation event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if ch == model.ChannelAPI {
		if _, err := tx.Exec(
			`UPDATE accounts SET api_calls_used = api_calls_used + 1, updated_at = ? WHERE id = ?`,
			now, accountID,
		); err != nil {
			return nil, fmt.Errorf("increment api usage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("record generation: %w", err)
	}
	return r.events.GetByID(id)
}

// TrackAction flips an outcome flag on a ledger event. When eventID is set
// the flag is applied to that exact event (generation responses carry the
// ID back to the caller). Otherwise the most recent event matching
// account/target/doc-type is used. A missing match is best-effort
// analytics, not an error: it reports tracked=false and succeeds.
func (r *Recorder) TrackAction(accountID, eventID int64, targetRef string, docType model.DocType, action model.Action) (bool, error) {
	if !action.Valid() {
		return false, fmt.Errorf("track action: unknown action %q", action)
	}

	var ev *model.GenerationEvent
	var err error
	if eventID > 0 {
		ev, err = r.events.GetByID(eventID)
		if err != nil {
			return false, err
		}
		if ev != nil && ev.AccountID != accountID {
			ev = nil
		}
	} else {
		ev, err = r.events.LatestMatch(accountID, targetRef, docType)
		if err != nil {
			return false, err
		}
	}
	if ev == nil {
		return false, nil
	}

	if err := r.events.MarkAction(ev.ID, action); err != nil {
		return false, err
	}
	return true, nil
}
