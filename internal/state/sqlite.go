// Package state keeps moorsync's local bookkeeping in a SQLite file: feed
// checkpoints (the newest catalog upload already processed) and a log of
// reconciliation runs for auditing. The engineering database itself is never
// touched from here.
package state

import (
	"database/sql"
	"strings"
	"time"

	"github.com/oceanops/moorsync/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Checkpoint returns the upload date of the newest file already processed for
// a feed, or the zero time when the feed has never been processed.
func (s *Store) Checkpoint(feed string) (time.Time, error) {
	var last time.Time
	err := s.db.QueryRow(`SELECT last_upload FROM checkpoints WHERE feed = ?`, feed).Scan(&last)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return last, nil
}

func (s *Store) SetCheckpoint(feed string, lastUpload time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO checkpoints (feed, last_upload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(feed) DO UPDATE SET
			last_upload = excluded.last_upload,
			updated_at = CURRENT_TIMESTAMP
	`, feed, lastUpload.UTC())
	return err
}

// RecordRun appends one reconciliation pass to the run log. runErr may be nil.
func (s *Store) RecordRun(meta *models.Metadata, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (station, parameters, range_start, range_end, tables_touched, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, meta.Station, strings.Join(meta.Parameters, ","), meta.Start.UTC(), meta.End.UTC(),
		strings.Join(meta.Tables, ","), errText)
	return err
}

func (s *Store) RecentRuns(station string, limit int) ([]models.Run, error) {
	rows, err := s.db.Query(`
		SELECT id, station, parameters, range_start, range_end, tables_touched, error, created_at
		FROM runs
		WHERE station = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, station, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var r models.Run
		var tables sql.NullString
		if err := rows.Scan(&r.ID, &r.Station, &r.Parameters, &r.Start, &r.End, &tables, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Tables = tables.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
