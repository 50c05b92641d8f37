// retrying.go wraps any Saver with exponential-backoff retries.
//
// Persistence failure is retryable, never fatal: the in-memory document
// keeps advancing while saves are retried. When retries are exhausted the
// failure is surfaced through the OnDegraded callback as a degraded-
// durability signal; it is not a mutation failure and must not be
// treated as one.
package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rvoss/coedit/pkg/model"
)

// DegradedFunc is notified when a save has exhausted its retries and the
// persisted copy of docID is now known to be behind version.
type DegradedFunc func(docID string, version int64, err error)

// Retrying decorates a Saver with exponential backoff on Save.
type Retrying struct {
	inner      Saver
	maxRetries uint64
	onDegraded DegradedFunc
}

// NewRetrying wraps inner. maxRetries bounds the retries per Save call;
// onDegraded may be nil.
func NewRetrying(inner Saver, maxRetries uint64, onDegraded DegradedFunc) *Retrying {
	return &Retrying{inner: inner, maxRetries: maxRetries, onDegraded: onDegraded}
}

// Save retries the underlying save with exponential backoff until it
// succeeds, the context is canceled, or maxRetries is exhausted.
func (r *Retrying) Save(ctx context.Context, docID string, version int64, content string, segments []model.Segment) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	err := backoff.Retry(func() error {
		return r.inner.Save(ctx, docID, version, content, segments)
	}, backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx))

	if err != nil && r.onDegraded != nil {
		r.onDegraded(docID, version, err)
	}
	return err
}

// Load delegates to the wrapped Saver.
func (r *Retrying) Load(ctx context.Context, docID string) (int64, []model.Segment, error) {
	return r.inner.Load(ctx, docID)
}

// Close delegates to the wrapped Saver.
func (r *Retrying) Close() error { return r.inner.Close() }
