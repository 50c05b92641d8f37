// Package transform rewrites concurrent operations against each other so
// that both application orders converge (Operational Transformation).
//
// Pair derives the bottom two sides of the OT diamond: given a and b both
// based on the same document version, it returns a' (a rebased over b) and
// b' (b rebased over a) such that applying b then a' equals applying a
// then b'. All tie-breaks are deterministic functions of the operations
// themselves (submitted position, then client ID, then operation ID),
// never of arrival order, so every replica resolves the same conflict
// identically.
//
// An op can transform into more than one primitive: a delete whose range
// has concurrently received an insert splits into two deletes around the
// preserved insert. Compound handles sequences of such primitives, where
// each op's coordinates assume its predecessors in the same sequence have
// been applied.
//
// Insert and Delete of every element kind transform positionally; Update
// conflicts resolve by last-write-wins (see lww.go). Transformation never
// fails for well-formed same-base inputs: positions that drift past the
// document bounds after repeated rebasing are clamped at apply time.
package transform

import (
	"github.com/rvoss/coedit/pkg/model"
)

// Pair transforms two concurrent operations against each other, returning
// a rebased over b and b rebased over a. Either result may be empty (the
// operation was entirely absorbed) or hold two primitives (a split).
func Pair(a, b model.Operation) (aT, bT []model.Operation) {
	switch {
	case a.Kind == model.OpInsert && b.Kind == model.OpInsert:
		return insertInsert(a, b)
	case a.Kind == model.OpInsert && b.Kind == model.OpDelete:
		aT, bT = insertDelete(a, b)
		return aT, bT
	case a.Kind == model.OpDelete && b.Kind == model.OpInsert:
		bT, aT = insertDelete(b, a)
		return aT, bT
	case a.Kind == model.OpDelete && b.Kind == model.OpDelete:
		return deleteDelete(a, b)
	case a.Kind == model.OpUpdate && b.Kind == model.OpUpdate:
		return updateUpdate(a, b)
	case a.Kind == model.OpUpdate && b.Kind == model.OpInsert:
		aT, bT = updateInsert(a, b)
		return aT, bT
	case a.Kind == model.OpInsert && b.Kind == model.OpUpdate:
		bT, aT = updateInsert(b, a)
		return aT, bT
	case a.Kind == model.OpUpdate && b.Kind == model.OpDelete:
		aT, bT = updateDelete(a, b)
		return aT, bT
	default: // delete vs update
		bT, aT = updateDelete(b, a)
		return aT, bT
	}
}

// Compound transforms two concurrent operation sequences against each
// other. Within a sequence, each op is expressed in the coordinates left
// by its predecessors. The decomposition threads each single op through
// the other sequence one element at a time, so splits produced along the
// way are themselves transformed against the remainder.
func Compound(a, b []model.Operation) (aT, bT []model.Operation) {
	switch {
	case len(a) == 0 || len(b) == 0:
		return a, b
	case len(a) == 1 && len(b) == 1:
		return Pair(a[0], b[0])
	case len(b) == 1:
		head, bMid := Compound(a[:1], b)
		tail, bOut := Compound(a[1:], bMid)
		return concat(head, tail), bOut
	default:
		aMid, head := Compound(a, b[:1])
		aOut, tail := Compound(aMid, b[1:])
		return aOut, concat(head, tail)
	}
}

// Rebase rewrites the incoming pieces across one applied log entry. The
// entry is history and is never rewritten; only the incoming side of the
// diamond is kept. An empty result means the operation was fully absorbed
// by history (e.g. its target range was already deleted).
func Rebase(incoming []model.Operation, entry model.LogEntry) []model.Operation {
	out, _ := Compound(incoming, entry.Ops)
	return out
}

// insertInsert: positions shift by the other side's length; on an exact
// position tie the winner of insertWinsTie keeps its place and the other
// side shifts.
func insertInsert(a, b model.Operation) (aT, bT []model.Operation) {
	switch {
	case a.Position < b.Position:
		return ops(a), ops(b.WithPosition(b.Position + a.Units()))
	case a.Position > b.Position:
		return ops(a.WithPosition(a.Position + b.Units())), ops(b)
	case insertWinsTie(a, b):
		return ops(a), ops(b.WithPosition(b.Position + a.Units()))
	default:
		return ops(a.WithPosition(a.Position + b.Units())), ops(b)
	}
}

// insertWinsTie orders two inserts whose current positions coincide: the
// one submitted at the lower position goes first. Two same-base inserts
// with distinct submitted positions can only collide after a concurrent
// delete collapsed the span between them, and every arrival order in which
// the delete reaches the log after either insert keeps them in submitted-
// position order, so the tie must resolve the same way here. Equal
// submitted positions fall back to the lower client ID, then to the lower
// operation ID, which is time-ordered and unique.
func insertWinsTie(a, b model.Operation) bool {
	if a.BasePosition != b.BasePosition {
		return a.BasePosition < b.BasePosition
	}
	if a.ClientID != b.ClientID {
		return a.ClientID < b.ClientID
	}
	return a.ID < b.ID
}

// insertDelete: an insert at or before the deleted range survives and
// shifts the delete; an insert after it shifts backward; an insert inside
// it is preserved by moving to the start of the range, and the delete
// splits around the inserted content.
func insertDelete(ins, del model.Operation) (insT, delT []model.Operation) {
	iu := ins.Units()
	switch {
	case ins.Position <= del.Position:
		return ops(ins), ops(del.WithPosition(del.Position + iu))
	case ins.Position >= del.End():
		return ops(ins.WithPosition(ins.Position - del.Length)), ops(del)
	default:
		off := ins.Position - del.Position
		return ops(ins.WithPosition(del.Position)), ops(
			del.WithLength(off),
			del.WithPosition(del.Position+iu).WithLength(del.Length-off),
		)
	}
}

// deleteDelete: disjoint ranges shift positionally; overlapping ranges
// union: each side keeps only its non-overlapping remainder, anchored at
// the lower of the two start positions. A fully covered delete becomes a
// no-op and is dropped.
func deleteDelete(a, b model.Operation) (aT, bT []model.Operation) {
	switch {
	case a.End() <= b.Position:
		return ops(a), ops(b.WithPosition(b.Position - a.Length))
	case b.End() <= a.Position:
		return ops(a.WithPosition(a.Position - b.Length)), ops(b)
	}
	pos := minInt(a.Position, b.Position)
	overlap := minInt(a.End(), b.End()) - maxInt(a.Position, b.Position)
	aT = remainderDelete(a, pos, a.Length-overlap)
	bT = remainderDelete(b, pos, b.Length-overlap)
	return aT, bT
}

func remainderDelete(d model.Operation, pos, n int) []model.Operation {
	if n <= 0 {
		return nil
	}
	return ops(d.WithPosition(pos).WithLength(n))
}

// ops builds a slice from primitives, for terseness above.
func ops(xs ...model.Operation) []model.Operation { return xs }

func concat(a, b []model.Operation) []model.Operation {
	out := make([]model.Operation, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
