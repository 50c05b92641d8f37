// Package document holds the authoritative ordered content of one
// document and applies already-transformed, already-ordered operations.
//
// Apply is the only mutator. Each applied log entry advances the version
// by exactly 1 and is appended to the applied operation log, which is the
// transform basis for late-arriving operations and is never edited
// retroactively. Replaying the log from the empty document reproduces the
// live state exactly (replay determinism).
//
// State is not goroutine-safe: each instance is exclusively owned by its
// document's coordinator goroutine. Other components read through
// immutable Snapshots.
package document

import (
	"github.com/rvoss/coedit/pkg/model"
)

// State is the materialized content and applied log of one document.
type State struct {
	docID   string
	version int64
	segs    []model.Segment
	log     []model.LogEntry

	// floor is the highest version trimmed from the log head by
	// compaction; entries with Version <= floor are gone and can no
	// longer serve as a transform basis.
	floor int64
}

// NewState returns the empty document at version 0.
func NewState(docID string) *State {
	return &State{docID: docID}
}

// FromSnapshot restores a document from a persisted snapshot. The applied
// log before the snapshot version is not recoverable, so the compaction
// floor starts at the snapshot version.
func FromSnapshot(snap Snapshot) *State {
	return &State{
		docID:   snap.DocID,
		version: snap.Version,
		segs:    append([]model.Segment(nil), snap.Segments...),
		floor:   snap.Version,
	}
}

func (s *State) DocID() string  { return s.docID }
func (s *State) Version() int64 { return s.version }

// Length returns the document length in logical units.
func (s *State) Length() int { return totalUnits(s.segs) }

// Materialize returns the concatenation of all segment contents in order.
func (s *State) Materialize() string {
	var out []byte
	for _, seg := range s.segs {
		out = append(out, seg.Content...)
	}
	return string(out)
}

// Apply applies one entry's primitive ops in order, advances the version
// by exactly 1, and appends the entry to the log. The returned entry is
// stamped with the resulting version and records the ops as actually
// applied (after bounds clamping), so replaying the log is deterministic.
func (s *State) Apply(entry model.LogEntry) model.LogEntry {
	applied := make([]model.Operation, 0, len(entry.Ops))
	for _, op := range entry.Ops {
		applied = append(applied, s.applyOp(op))
	}
	s.version++
	entry.Version = s.version
	entry.Ops = applied
	s.log = append(s.log, entry)
	return entry
}

// applyOp mutates the segment sequence and returns the op as applied,
// with out-of-range positions clamped to the current bounds rather than
// rejected. Clamping is the deliberate lossy-but-safe policy that keeps
// repeatedly rebased operations from ever failing.
func (s *State) applyOp(op model.Operation) model.Operation {
	length := s.Length()
	pos := clamp(op.Position, 0, length)
	op.Position = pos

	switch op.Kind {
	case model.OpInsert:
		s.segs = splice(s.segs, pos, model.Segment{Element: op.Element, Content: op.Payload})
	case model.OpDelete:
		n := clamp(op.Length, 0, length-pos)
		op.Length = n
		s.segs = cut(s.segs, pos, n)
	case model.OpUpdate:
		n := clamp(model.PayloadUnits(op.Element, op.Payload), 0, length-pos)
		payload := op.Payload
		if op.Element == model.ElemText {
			payload = string([]rune(op.Payload)[:n])
		} else if n == 0 {
			payload = ""
		}
		op.Payload = payload
		if n > 0 {
			s.segs = cut(s.segs, pos, n)
			s.segs = splice(s.segs, pos, model.Segment{Element: op.Element, Content: payload})
		}
	}
	return op
}

// EntriesAfter returns the log entries with Version > base, in log order.
// The slice aliases the log; callers must not retain it across Apply.
func (s *State) EntriesAfter(base int64) []model.LogEntry {
	// Entries are contiguous by version, so index arithmetic suffices.
	if len(s.log) == 0 {
		return nil
	}
	first := s.log[0].Version
	if base < first-1 {
		base = first - 1
	}
	idx := int(base - first + 1)
	if idx >= len(s.log) {
		return nil
	}
	return s.log[idx:]
}

// CanRebase reports whether the log still holds every entry needed to
// transform an operation based on base. False means the basis was
// compacted away and the client must resynchronize from a snapshot.
func (s *State) CanRebase(base int64) bool {
	return base >= s.floor && base <= s.version
}

// Compact trims log entries with Version <= upTo. The coordinator calls
// this once no live client can submit a base version at or below upTo.
func (s *State) Compact(upTo int64) int {
	if upTo > s.version {
		upTo = s.version
	}
	if upTo <= s.floor {
		return 0
	}
	drop := 0
	for drop < len(s.log) && s.log[drop].Version <= upTo {
		drop++
	}
	s.log = append([]model.LogEntry(nil), s.log[drop:]...)
	s.floor = upTo
	return drop
}

// LogLen returns the number of retained log entries.
func (s *State) LogLen() int { return len(s.log) }

// Log returns a copy of the retained applied operation log.
func (s *State) Log() []model.LogEntry {
	return append([]model.LogEntry(nil), s.log...)
}

// Snapshot is an immutable, versioned copy of the materialized document,
// safe to publish across goroutines.
type Snapshot struct {
	DocID    string          `json:"doc_id"`
	Version  int64           `json:"version"`
	Segments []model.Segment `json:"segments"`
}

// Materialize returns the concatenation of the snapshot's segment
// contents, matching State.Materialize at the snapshot version.
func (sn Snapshot) Materialize() string {
	var out []byte
	for _, seg := range sn.Segments {
		out = append(out, seg.Content...)
	}
	return string(out)
}

// Snapshot returns the current published view of the document.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		DocID:    s.docID,
		Version:  s.version,
		Segments: append([]model.Segment(nil), s.segs...),
	}
}

// Replay rebuilds a document from the empty state by applying stamped log
// entries in order. The result must equal the live document the log was
// taken from.
func Replay(docID string, entries []model.LogEntry) *State {
	s := NewState(docID)
	for _, e := range entries {
		for _, op := range e.Ops {
			s.applyOp(op)
		}
		s.version = e.Version
		s.log = append(s.log, e)
	}
	return s
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
