// Package convstore persists conversion outcomes and pending work in
// SQLite. It carries two primitives: the record store, an append-mostly
// journal of conversion results, and the job queue, a visibility-timeout
// queue feeding batch workers.
//
// Everything is pure SQLite — no external broker, no cloud dependency.
package convstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docmill/docmill/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversions (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    format      TEXT NOT NULL DEFAULT '',
    hash        TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    errors      TEXT NOT NULL DEFAULT '[]',  -- JSON array of error items
    pages       INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL              -- milliseconds since epoch
);
CREATE INDEX IF NOT EXISTS idx_conversions_status ON conversions (status, created_at);
CREATE INDEX IF NOT EXISTS idx_conversions_hash ON conversions (hash);

CREATE TABLE IF NOT EXISTS conv_jobs (
    id          TEXT PRIMARY KEY,
    payload     BLOB,
    visible_at  INTEGER NOT NULL DEFAULT 0,  -- milliseconds since epoch
    created_at  INTEGER NOT NULL,
    attempts    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_conv_jobs_visible ON conv_jobs (visible_at);

CREATE TABLE IF NOT EXISTS conv_metrics (
    name       TEXT NOT NULL,
    timestamp  INTEGER NOT NULL,             -- milliseconds since epoch
    value      REAL NOT NULL,
    labels     TEXT,                          -- JSON object, NULL when empty
    unit       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_conv_metrics_name ON conv_metrics (name, timestamp);
`

// ErrNotFound is returned when a conversion record does not exist.
var ErrNotFound = errors.New("convstore: not found")

// Record is one persisted conversion outcome.
type Record struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Format    string               `json:"format"`
	Hash      string               `json:"hash"`
	Status    pipeline.Status      `json:"status"`
	Errors    []pipeline.ErrorItem `json:"errors,omitempty"`
	Pages     int                  `json:"pages"`
	Duration  time.Duration        `json:"duration"`
	CreatedAt time.Time            `json:"created_at"`
}

// Store journals conversion results.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened database. Open already applied the schema.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save persists one conversion outcome under the given ID.
func (s *Store) Save(ctx context.Context, id string, res *pipeline.ConversionResult, took time.Duration) error {
	errJSON, err := json.Marshal(res.Errors)
	if err != nil {
		return fmt.Errorf("convstore: marshal errors: %w", err)
	}
	if res.Errors == nil {
		errJSON = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversions (id, name, format, hash, status, errors, pages, duration_ms, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		id, res.Input.Name, string(res.Input.Format), res.Input.Hash,
		string(res.Status), string(errJSON), len(res.Pages),
		took.Milliseconds(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("convstore: save %s: %w", id, err)
	}
	return nil
}

// Get returns one conversion record by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, format, hash, status, errors, pages, duration_ms, created_at
		FROM conversions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListByStatus returns the most recent records with the given status,
// newest first, capped at limit.
func (s *Store) ListByStatus(ctx context.Context, status pipeline.Status, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, format, hash, status, errors, pages, duration_ms, created_at
		FROM conversions WHERE status = ?
		ORDER BY created_at DESC LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CountByStatus returns how many records carry each status.
func (s *Store) CountByStatus(ctx context.Context) (map[pipeline.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM conversions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[pipeline.Status]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[pipeline.Status(st)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var status, errJSON string
	var durMs, creAt int64
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Format, &rec.Hash,
		&status, &errJSON, &rec.Pages, &durMs, &creAt); err != nil {
		return nil, err
	}
	rec.Status = pipeline.Status(status)
	rec.Duration = time.Duration(durMs) * time.Millisecond
	rec.CreatedAt = time.UnixMilli(creAt)
	if err := json.Unmarshal([]byte(errJSON), &rec.Errors); err != nil {
		return nil, fmt.Errorf("convstore: decode errors for %s: %w", rec.ID, err)
	}
	return &rec, nil
}
