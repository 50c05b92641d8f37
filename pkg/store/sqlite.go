// Package store persists materialized document snapshots.
//
// Durability is deliberately allowed to lag: the coordinator keeps
// advancing the in-memory document while saves catch up asynchronously,
// so a slow or failing store degrades durability, never consistency.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rvoss/coedit/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite stores snapshots in a single-file SQLite database in WAL mode,
// suitable for single-node deployments.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database and initializes the schema.
func NewSQLite(path string) (*SQLite, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		doc_id   TEXT PRIMARY KEY,
		version  INTEGER NOT NULL,
		content  TEXT NOT NULL,
		segments TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts the snapshot. The version guard on the upsert keeps a
// delayed retry of an older version from clobbering a newer row.
func (s *SQLite) Save(ctx context.Context, docID string, version int64, content string, segments []model.Segment) error {
	segJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return withContentionRetry(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO documents (doc_id, version, content, segments, saved_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(doc_id) DO UPDATE SET
			   version = excluded.version,
			   content = excluded.content,
			   segments = excluded.segments,
			   saved_at = excluded.saved_at
			 WHERE excluded.version >= documents.version`,
			docID, version, content, string(segJSON), now,
		)
		return err
	})
}

// Load returns the last saved version and segments for docID.
func (s *SQLite) Load(ctx context.Context, docID string) (int64, []model.Segment, error) {
	var version int64
	var segJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT version, segments FROM documents WHERE doc_id = ?`, docID,
	).Scan(&version, &segJSON)
	if err == sql.ErrNoRows {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	var segs []model.Segment
	if err := json.Unmarshal([]byte(segJSON), &segs); err != nil {
		return 0, nil, fmt.Errorf("unmarshal segments for %s: %w", docID, err)
	}
	return version, segs, nil
}
