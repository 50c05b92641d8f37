// iface.go defines the persistence contract the coordinator depends on.
//
// The core never touches a concrete storage technology: it hands each
// applied snapshot to a Saver and treats failure as retryable, never fatal
// to the in-memory replica. The concrete *SQLite and *Postgres types
// satisfy this interface; tests inject fakes.
package store

import (
	"context"
	"errors"

	"github.com/rvoss/coedit/pkg/model"
)

// ErrNotFound is returned by Load for a document that was never saved.
var ErrNotFound = errors.New("store: document not found")

// Saver persists materialized document snapshots, newest version wins.
// Save must be safe to call with out-of-order versions: an older version
// arriving after a newer one (a retried save that lost a race) must never
// overwrite the newer row.
type Saver interface {
	// Save upserts the materialized snapshot for docID.
	Save(ctx context.Context, docID string, version int64, content string, segments []model.Segment) error

	// Load returns the last saved version and segments for docID, or
	// ErrNotFound.
	Load(ctx context.Context, docID string) (int64, []model.Segment, error)

	// Close releases the underlying connection.
	Close() error
}

// Compile-time checks that the concrete stores implement Saver.
var (
	_ Saver = (*SQLite)(nil)
	_ Saver = (*Postgres)(nil)
	_ Saver = (*Retrying)(nil)
)
