// postgres.go is the PostgreSQL snapshot backend, for deployments where
// several coedit nodes share one database.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rvoss/coedit/pkg/model"
)

// Postgres stores snapshots in a PostgreSQL table via a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to url and initializes the schema.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return p, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS documents (
		doc_id   TEXT PRIMARY KEY,
		version  BIGINT NOT NULL,
		content  TEXT NOT NULL,
		segments JSONB NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return err
}

// Save upserts the snapshot, guarded so an out-of-order retry of an older
// version never overwrites a newer row.
func (p *Postgres) Save(ctx context.Context, docID string, version int64, content string, segments []model.Segment) error {
	segJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO documents (doc_id, version, content, segments, saved_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (doc_id) DO UPDATE SET
		   version = EXCLUDED.version,
		   content = EXCLUDED.content,
		   segments = EXCLUDED.segments,
		   saved_at = EXCLUDED.saved_at
		 WHERE documents.version <= EXCLUDED.version`,
		docID, version, content, segJSON,
	)
	return err
}

// Load returns the last saved version and segments for docID.
func (p *Postgres) Load(ctx context.Context, docID string) (int64, []model.Segment, error) {
	var version int64
	var segJSON []byte
	err := p.pool.QueryRow(ctx,
		`SELECT version, segments FROM documents WHERE doc_id = $1`, docID,
	).Scan(&version, &segJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	var segs []model.Segment
	if err := json.Unmarshal(segJSON, &segs); err != nil {
		return 0, nil, fmt.Errorf("unmarshal segments for %s: %w", docID, err)
	}
	return version, segs, nil
}
