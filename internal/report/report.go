// Package report is a read-only client over the generation ledger for the
// admin metrics surface. It never writes and it is not consulted by the
// entitlement evaluator.
package report

import (
	"database/sql"
	"fmt"
	"time"
)

type Reporter struct {
	db *sql.DB
}

func NewReporter(db *sql.DB) *Reporter {
	return &Reporter{db: db}
}

type DocTypeCount struct {
	DocType string `json:"doc_type"`
	Count   int    `json:"count"`
}

type ChannelCount struct {
	Channel string `json:"channel"`
	Count   int    `json:"count"`
}

type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

func (r *Reporter) CountsByDocType(since time.Time) ([]DocTypeCount, error) {
	rows, err := r.db.Query(
		`SELECT doc_type, COUNT(*) FROM generation_events WHERE created_at >= ? GROUP BY doc_type ORDER BY COUNT(*) DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("counts by doc type: %w", err)
	}
	defer rows.Close()

	var out []DocTypeCount
	for rows.Next() {
		var c DocTypeCount
		if err := rows.Scan(&c.DocType, &c.Count); err != nil {
			return nil, fmt.Errorf("scan doc type count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reporter) CountsByChannel(since time.Time) ([]ChannelCount, error) {
	rows, err := r.db.Query(
		`SELECT channel, COUNT(*) FROM generation_events WHERE created_at >= ? GROUP BY channel`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("counts by channel: %w", err)
	}
	defer rows.Close()

	var out []ChannelCount
	for rows.Next() {
		var c ChannelCount
		if err := rows.Scan(&c.Channel, &c.Count); err != nil {
			return nil, fmt.Errorf("scan channel count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DailyCounts buckets generations per UTC day over the trailing window.
func (r *Reporter) DailyCounts(days int) ([]DayCount, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := r.db.Query(
		`SELECT date(created_at), COUNT(*) FROM generation_events WHERE created_at >= ? GROUP BY date(created_at) ORDER BY date(created_at)`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var c DayCount
		if err := rows.Scan(&c.Day, &c.Count); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
