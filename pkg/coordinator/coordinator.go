// Package coordinator serializes all edits to a document and reconciles
// concurrent operations so every replica converges.
//
// One goroutine runs per active document; operations for a document are
// delivered to that goroutine's FIFO inbox, so the per-document pipeline
// (validate → transform → apply → broadcast) never re-enters. Different
// documents share nothing mutable and run fully in parallel.
//
// Arrival order is only a delivery detail: causal order is reconciled via
// each operation's base version. A stale operation is rebased against
// every applied log entry past its base before it is applied; an
// operation claiming a base version the server has not reached is a
// protocol violation and is rejected so the client resynchronizes from a
// snapshot.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rvoss/coedit/pkg/broadcast"
	"github.com/rvoss/coedit/pkg/document"
	"github.com/rvoss/coedit/pkg/frontier"
	"github.com/rvoss/coedit/pkg/model"
	"github.com/rvoss/coedit/pkg/store"
)

// Config wires the coordinator's external collaborators. Both are
// optional: a nil Saver disables persistence, a nil Broadcaster disables
// fan-out (results still reach the submitter).
type Config struct {
	Saver       store.Saver
	Broadcaster broadcast.Broadcaster

	// MailboxSize bounds each document's inbox. Default 128.
	MailboxSize int

	// CompactEvery is the number of applies between compaction passes
	// over the applied log. 0 uses the default (64); negative disables
	// compaction.
	CompactEvery int
}

const (
	defaultMailboxSize  = 128
	defaultCompactEvery = 64
)

// Coordinator owns the per-document loops and routes inbound operations
// to them, partitioned by document ID.
type Coordinator struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	docs map[string]*docLoop
}

// New returns a running coordinator. Call Close to stop it.
func New(cfg Config) *Coordinator {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = defaultMailboxSize
	}
	if cfg.CompactEvery == 0 {
		cfg.CompactEvery = defaultCompactEvery
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		docs:   make(map[string]*docLoop),
	}
}

// Close stops every document loop and waits for them to drain.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

// Session is the ephemeral per-connection context. It carries no
// authority over document state: it exists to route acknowledgments and
// to cancel a disconnected client's queued operations.
type Session struct {
	ClientID string
	docID    string

	acked atomic.Int64
	gone  atomic.Bool
}

// Ack records that the client has observed version. Acknowledgments only
// move forward.
func (s *Session) Ack(version int64) {
	for {
		cur := s.acked.Load()
		if version <= cur || s.acked.CompareAndSwap(cur, version) {
			return
		}
	}
}

// LastAcked returns the highest version the client has acknowledged.
func (s *Session) LastAcked() int64 { return s.acked.Load() }

// Result is the submitter's view of one operation's outcome. Exactly one
// of the three shapes holds: applied (Version set), duplicate (Version of
// the original apply, Duplicate set), or refused (Rejection set).
// Canceled marks an operation dropped because its client disconnected
// before it entered the apply step.
type Result struct {
	Version   int64
	Duplicate bool
	Canceled  bool
	Rejection *model.Rejection
}

// Attach registers a client session on a document, starting the
// document's loop if needed. The session starts acknowledged at the
// current version, since a connecting client bootstraps from the current
// snapshot.
func (c *Coordinator) Attach(docID, clientID string) (*Session, error) {
	l, err := c.loopFor(docID)
	if err != nil {
		return nil, err
	}
	s := &Session{ClientID: clientID, docID: docID}
	s.acked.Store(l.snapshot().Version)
	l.addSession(s)
	return s, nil
}

// Detach removes the session. Queued operations from this client that
// have not entered the apply step are canceled; anything already applied
// is permanent regardless of the disconnect.
func (c *Coordinator) Detach(s *Session) {
	s.gone.Store(true)
	c.mu.Lock()
	l := c.docs[s.docID]
	c.mu.Unlock()
	if l != nil {
		l.removeSession(s)
	}
}

// Submit validates sub, enqueues it on its document's loop and waits for
// the outcome. FIFO order per document is preserved because enqueueing
// happens in submission order on the loop's single inbox.
func (c *Coordinator) Submit(ctx context.Context, sess *Session, sub model.Submit) (Result, error) {
	sub.DocID = sess.docID
	sub.ClientID = sess.ClientID
	op, rej := model.FromSubmit(sub)
	if rej != nil {
		return Result{Rejection: rej}, nil
	}

	l, err := c.loopFor(sess.docID)
	if err != nil {
		return Result{}, err
	}
	reply := make(chan Result, 1)
	select {
	case l.inbox <- envelope{op: op, sess: sess, reply: reply}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-c.ctx.Done():
		return Result{}, c.ctx.Err()
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-c.ctx.Done():
		return Result{}, c.ctx.Err()
	}
}

// Snapshot returns the published versioned snapshot for docID, starting
// the document's loop (and loading persisted state) if needed. This is
// the only read path for components outside the document's goroutine.
func (c *Coordinator) Snapshot(docID string) (document.Snapshot, error) {
	l, err := c.loopFor(docID)
	if err != nil {
		return document.Snapshot{}, err
	}
	return l.snapshot(), nil
}

// Frontier reports the compaction frontier and the sessions pinning it.
func (c *Coordinator) Frontier(docID string) (frontier.Status, error) {
	l, err := c.loopFor(docID)
	if err != nil {
		return frontier.Status{}, err
	}
	return frontier.ComputeStatus(l.snapshot().Version, l.pointstamps()), nil
}

// loopFor returns the running loop for docID, creating it on first use.
// Creation restores the document from persistence when a snapshot exists.
func (c *Coordinator) loopFor(docID string) (*docLoop, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.docs[docID]; ok {
		return l, nil
	}
	select {
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	default:
	}

	state := document.NewState(docID)
	if c.cfg.Saver != nil {
		version, segs, err := c.cfg.Saver.Load(c.ctx, docID)
		switch {
		case err == nil:
			state = document.FromSnapshot(document.Snapshot{
				DocID: docID, Version: version, Segments: segs,
			})
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, fmt.Errorf("restore %s: %w", docID, err)
		}
	}

	l := newDocLoop(c, docID, state)
	c.docs[docID] = l
	c.wg.Add(2)
	go l.run()
	go l.persistLoop()
	return l, nil
}
