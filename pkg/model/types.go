// Package model defines the core domain types for coedit.
//
// Coedit keeps one eventually-consistent logical document per document ID
// under concurrent edits from many clients, using two ideas:
//
//   - Operational Transformation (Ellis & Gibbs 1989): a stale operation is
//     rewritten against every operation applied since its base version, so
//     that all replicas converge to the same content no matter in which
//     order concurrent edits arrived.
//
//   - Lamport clocks (1978): logical timestamps carried on every operation.
//     Ties are broken by client ID, giving a deterministic total order with
//     no central coordinator, which is the rule every replica must share for
//     last-write-wins conflicts.
//
// An Operation is immutable once created. Transformation derives new
// Operation values; it never mutates the original.
package model

// OpKind enumerates the edit intents a client can express.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpDelete OpKind = "delete"
	OpUpdate OpKind = "update"
)

// ElementKind enumerates the closed set of element variants a document is
// composed of. Dispatch over this tag replaces virtual dispatch: rendering
// is a switch in pkg/render, never a method on the core types.
type ElementKind string

const (
	ElemText     ElementKind = "text"
	ElemImage    ElementKind = "image"
	ElemNewLine  ElementKind = "newline"
	ElemTabSpace ElementKind = "tabspace"
)

// Operation is a single edit intent plus the causal metadata needed to
// reconcile it against concurrent edits.
//
// Position is a zero-based offset in logical units: runes for Text runs,
// one unit per Image/NewLine/TabSpace element. Payload carries content for
// Insert/Update; Length carries the unit count for Delete.
//
// BasePosition preserves the Position as submitted at BaseVersion:
// transformation rewrites Position but never BasePosition. It orders
// inserts whose positions a concurrent delete collapsed to the same point.
type Operation struct {
	ID           string      `json:"id"`
	DocID        string      `json:"doc_id"`
	ClientID     string      `json:"client_id"`
	BaseVersion  int64       `json:"base_version"`
	Kind         OpKind      `json:"kind"`
	Position     int         `json:"position"`
	BasePosition int         `json:"base_position"`
	Payload      string      `json:"payload,omitempty"`
	Length       int         `json:"length,omitempty"`
	Element      ElementKind `json:"element"`
	Timestamp    int64       `json:"timestamp"`
}

// Units returns the operation's extent in logical units: rune count of the
// payload for Text inserts/updates, 1 for unit elements, Length for deletes.
func (op Operation) Units() int {
	switch op.Kind {
	case OpDelete:
		return op.Length
	default:
		return PayloadUnits(op.Element, op.Payload)
	}
}

// End returns the exclusive end of the operation's range.
func (op Operation) End() int { return op.Position + op.Units() }

// WithPosition returns a copy of op at a new position. The original is
// never mutated; a transformed operation is always a derived value.
func (op Operation) WithPosition(pos int) Operation {
	op.Position = pos
	return op
}

// WithLength returns a copy of a Delete with a new unit length.
func (op Operation) WithLength(n int) Operation {
	op.Length = n
	return op
}

// PayloadUnits returns the logical length of payload under kind:
// runes for Text, exactly one unit for Image/NewLine/TabSpace.
func PayloadUnits(kind ElementKind, payload string) int {
	if kind == ElemText {
		return len([]rune(payload))
	}
	if payload == "" {
		return 0
	}
	return 1
}

// Segment is a contiguous run of one element kind. A document is the
// concatenation of its segments in order. For Text the content is the run
// of characters; for Image it is the asset path; NewLine and TabSpace runs
// hold the literal control characters.
type Segment struct {
	Element ElementKind `json:"element"`
	Content string      `json:"content"`
}

// Units returns the segment's length in logical units.
func (s Segment) Units() int {
	switch s.Element {
	case ElemImage:
		return 1
	default:
		return len([]rune(s.Content))
	}
}

// LogEntry is one record of the per-document applied operation log: the
// fully transformed form of one accepted client operation, tagged with the
// version it produced. An entry carries more than one primitive op only
// when transformation split a delete around concurrently inserted content;
// the primitives apply in order, each in the coordinates left by its
// predecessor, and the whole entry advances the version by exactly 1.
//
// The log is append-only and is the transform basis for late arrivals.
type LogEntry struct {
	Version   int64       `json:"version"`
	OpID      string      `json:"op_id"`
	ClientID  string      `json:"client_id"`
	Timestamp int64       `json:"timestamp"`
	Ops       []Operation `json:"ops"`
}

// Submit is the inbound operation message as it arrives from the transport
// collaborator. OpID may be empty; the coordinator assigns one. A client
// that resubmits after a lost acknowledgment must reuse its original OpID
// for the resubmission to be idempotent.
type Submit struct {
	OpID        string      `json:"op_id,omitempty"`
	DocID       string      `json:"doc_id"`
	ClientID    string      `json:"client_id"`
	BaseVersion int64       `json:"base_version"`
	Kind        OpKind      `json:"kind"`
	Position    int         `json:"position"`
	Payload     string      `json:"payload,omitempty"`
	Length      int         `json:"length,omitempty"`
	Element     ElementKind `json:"element"`
	ClientTime  int64       `json:"client_time"`
}

// ConfirmedOp is one primitive op inside a Confirmation, with its
// post-transform position.
type ConfirmedOp struct {
	Kind     OpKind      `json:"kind"`
	Position int         `json:"position"`
	Payload  string      `json:"payload,omitempty"`
	Length   int         `json:"length,omitempty"`
	Element  ElementKind `json:"element"`
}

// Confirmation is the outbound broadcast message: one applied operation in
// its final transformed form, tagged with the version it produced and the
// coordinator-resolved Lamport timestamp.
type Confirmation struct {
	DocID      string        `json:"doc_id"`
	Version    int64         `json:"version"`
	OpID       string        `json:"op_id"`
	ClientID   string        `json:"client_id"`
	Ops        []ConfirmedOp `json:"ops"`
	ResolvedTS int64         `json:"resolved_ts"`
}
