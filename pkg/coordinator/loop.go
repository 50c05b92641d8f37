// loop.go is the per-document execution context.
//
// Each loop cycles Idle → Resolving → Applying → Broadcasting → Idle for
// the lifetime of the document. Only one operation occupies the pipeline
// at a time; apply is atomic, so the loop never suspends while the document
// is mid-mutation. The only suspension points are the hand-offs to the
// broadcast and persistence collaborators, and persistence is fully
// asynchronous: a slow store lags durability, never the document.
package coordinator

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/rvoss/coedit/pkg/clock"
	"github.com/rvoss/coedit/pkg/document"
	"github.com/rvoss/coedit/pkg/frontier"
	"github.com/rvoss/coedit/pkg/model"
	"github.com/rvoss/coedit/pkg/transform"
)

// envelope is one queued submission plus its reply path.
type envelope struct {
	op    model.Operation
	sess  *Session
	reply chan Result
}

type docLoop struct {
	c     *Coordinator
	docID string
	inbox chan envelope

	// Owned exclusively by run(); no other goroutine touches these.
	state   *document.State
	clk     clock.Clock
	dedup   map[string]int64 // op ID -> version it produced
	applies int              // since the last compaction pass

	// Published state, readable from any goroutine.
	snap atomicSnapshot

	sessMu   sync.Mutex
	sessions map[*Session]struct{}

	persistCh chan document.Snapshot
}

func newDocLoop(c *Coordinator, docID string, state *document.State) *docLoop {
	l := &docLoop{
		c:         c,
		docID:     docID,
		inbox:     make(chan envelope, c.cfg.MailboxSize),
		state:     state,
		dedup:     make(map[string]int64),
		sessions:  make(map[*Session]struct{}),
		persistCh: make(chan document.Snapshot, 1),
	}
	// Per-entry timestamps are not persisted, but every apply advances the
	// clock at least once, so the version is a lower bound on the clock a
	// restored document had. Seeding with it keeps resolved timestamps
	// moving forward across restarts.
	l.clk.Set(state.Version())
	l.publish(state.Snapshot())
	return l
}

func (l *docLoop) run() {
	defer l.c.wg.Done()
	for {
		// Idle: wait for the next inbound operation.
		select {
		case <-l.c.ctx.Done():
			return
		case env := <-l.inbox:
			if env.sess != nil && env.sess.gone.Load() {
				// The client disconnected while this operation was
				// queued; it never reaches the apply step.
				env.reply <- Result{Canceled: true}
				continue
			}
			env.reply <- l.handle(env.op)
		}
	}
}

// handle runs one operation through Resolving, Applying and Broadcasting.
// Every rejection is local to the offending operation; the loop moves on
// to the next inbound operation regardless of the outcome.
func (l *docLoop) handle(op model.Operation) Result {
	// Resolving.
	if v, ok := l.dedup[op.ID]; ok {
		// Already applied: acknowledge idempotently, no state change.
		return Result{Version: v, Duplicate: true}
	}
	cur := l.state.Version()
	if op.BaseVersion > cur {
		// The client claims to have seen a version we have not produced.
		return Result{Rejection: &model.Rejection{
			DocID:    l.docID,
			ClientID: op.ClientID,
			OpID:     op.ID,
			Reason:   model.ReasonVersionAhead,
			Detail:   "resynchronize from a snapshot",
		}}
	}
	if !l.state.CanRebase(op.BaseVersion) {
		return Result{Rejection: &model.Rejection{
			DocID:    l.docID,
			ClientID: op.ClientID,
			OpID:     op.ID,
			Reason:   model.ReasonBaseCompacted,
			Detail:   "resynchronize from a snapshot",
		}}
	}
	if op.BaseVersion == cur && op.Position > l.state.Length() {
		return Result{Rejection: &model.Rejection{
			DocID:    l.docID,
			ClientID: op.ClientID,
			OpID:     op.ID,
			Reason:   model.ReasonPositionPastEnd,
		}}
	}

	ops := []model.Operation{op}
	for _, entry := range l.state.EntriesAfter(op.BaseVersion) {
		ops = transform.Rebase(ops, entry)
		if len(ops) == 0 {
			// Fully absorbed by history (e.g. the target range was
			// already deleted). Still applied as an empty entry so the
			// version advances by exactly one per accepted operation.
			break
		}
	}

	// Applying: atomic, no suspension until the document is consistent.
	applied := l.state.Apply(model.LogEntry{
		OpID:      op.ID,
		ClientID:  op.ClientID,
		Timestamp: l.clk.Receive(op.Timestamp),
		Ops:       ops,
	})
	l.dedup[op.ID] = applied.Version
	snap := l.state.Snapshot()
	l.publish(snap)

	// Broadcasting.
	if l.c.cfg.Broadcaster != nil {
		if err := l.c.cfg.Broadcaster.Broadcast(l.c.ctx, confirmation(l.docID, applied)); err != nil {
			log.Printf("coordinator: broadcast %s v%d: %v", l.docID, applied.Version, err)
		}
	}

	l.schedulePersist(snap)

	l.applies++
	if l.c.cfg.CompactEvery > 0 && l.applies >= l.c.cfg.CompactEvery {
		l.applies = 0
		l.compact()
	}
	return Result{Version: applied.Version}
}

// compact trims the applied log below the frontier: the lowest version
// any live session could still submit a base against. The dedup index is
// trimmed in step, so the idempotency window equals the log retention
// window.
func (l *docLoop) compact() {
	f := frontier.Compute(l.state.Version(), l.pointstamps())
	if dropped := l.state.Compact(f); dropped > 0 {
		for id, v := range l.dedup {
			if v <= f {
				delete(l.dedup, id)
			}
		}
		log.Printf("coordinator: compacted %s: %d entries up to v%d", l.docID, dropped, f)
	}
}

func (l *docLoop) pointstamps() []frontier.Pointstamp {
	l.sessMu.Lock()
	defer l.sessMu.Unlock()
	out := make([]frontier.Pointstamp, 0, len(l.sessions))
	for s := range l.sessions {
		if !s.gone.Load() {
			out = append(out, frontier.Pointstamp{
				ClientID:     s.ClientID,
				AckedVersion: s.LastAcked(),
			})
		}
	}
	return out
}

func (l *docLoop) addSession(s *Session) {
	l.sessMu.Lock()
	defer l.sessMu.Unlock()
	l.sessions[s] = struct{}{}
}

func (l *docLoop) removeSession(s *Session) {
	l.sessMu.Lock()
	defer l.sessMu.Unlock()
	delete(l.sessions, s)
}

// schedulePersist queues the snapshot for the persistence goroutine,
// coalescing to the newest version: if an older snapshot is still
// pending, it is replaced rather than queued behind.
func (l *docLoop) schedulePersist(snap document.Snapshot) {
	if l.c.cfg.Saver == nil {
		return
	}
	for {
		select {
		case l.persistCh <- snap:
			return
		default:
			select {
			case <-l.persistCh:
			default:
			}
		}
	}
}

// persistLoop drains queued snapshots into the Saver. Failures are logged
// as degraded durability and never touch the in-memory document; the next
// successful save of a newer snapshot supersedes the lost one.
func (l *docLoop) persistLoop() {
	defer l.c.wg.Done()
	for {
		select {
		case <-l.c.ctx.Done():
			return
		case snap := <-l.persistCh:
			err := l.c.cfg.Saver.Save(l.c.ctx, snap.DocID, snap.Version, snap.Materialize(), snap.Segments)
			if err != nil {
				log.Printf("coordinator: durability degraded for %s at v%d: %v", snap.DocID, snap.Version, err)
			}
		}
	}
}

func (l *docLoop) publish(snap document.Snapshot) { l.snap.Store(snap) }

func (l *docLoop) snapshot() document.Snapshot { return l.snap.Load() }

// atomicSnapshot publishes immutable snapshots across goroutines.
type atomicSnapshot struct {
	p atomic.Pointer[document.Snapshot]
}

func (a *atomicSnapshot) Store(s document.Snapshot) { a.p.Store(&s) }
func (a *atomicSnapshot) Load() document.Snapshot   { return *a.p.Load() }

// confirmation converts an applied log entry into the outbound broadcast
// message, carrying post-transform positions and the resolved timestamp.
func confirmation(docID string, e model.LogEntry) model.Confirmation {
	ops := make([]model.ConfirmedOp, 0, len(e.Ops))
	for _, op := range e.Ops {
		ops = append(ops, model.ConfirmedOp{
			Kind:     op.Kind,
			Position: op.Position,
			Payload:  op.Payload,
			Length:   op.Length,
			Element:  op.Element,
		})
	}
	return model.Confirmation{
		DocID:      docID,
		Version:    e.Version,
		OpID:       e.OpID,
		ClientID:   e.ClientID,
		Ops:        ops,
		ResolvedTS: e.Timestamp,
	}
}
