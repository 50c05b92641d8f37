// lww.go resolves Update conflicts by last-write-wins.
//
// An Update is an atomic, non-composable replacement (e.g. swapping an
// image path): full intent-preserving transformation adds no value for it,
// so LWW trades preservation for simplicity. The strictly later Lamport
// timestamp wins; on an exact tie the lower client ID wins, the same
// total order every replica applies (clock.Wins).
//
// Updates replace content in place without changing document length, so
// they never shift other operations' positions. Their own positions still
// transform against concurrent inserts and deletes.
package transform

import (
	"github.com/rvoss/coedit/pkg/clock"
	"github.com/rvoss/coedit/pkg/model"
)

// updateUpdate: overlapping ranges conflict; the LWW loser keeps only the
// part of its range the winner does not cover, so the winner's content can
// never be overwritten on any replica while the loser's disjoint edits
// survive. Disjoint updates do not interact.
func updateUpdate(a, b model.Operation) (aT, bT []model.Operation) {
	if a.End() <= b.Position || b.End() <= a.Position {
		return ops(a), ops(b)
	}
	if clock.Wins(a.Timestamp, a.ClientID, b.Timestamp, b.ClientID) {
		return ops(a), updateRemainder(b, a)
	}
	return updateRemainder(a, b), ops(b)
}

// updateRemainder returns the pieces of losing update l that fall outside
// winning update w's range, at their original positions (updates preserve
// length, so nothing shifts). A winner strictly inside the loser yields two
// pieces; a unit-element loser inside the overlap yields none.
func updateRemainder(l, w model.Operation) []model.Operation {
	if l.Element != model.ElemText {
		return nil
	}
	covered := func(at int) bool { return at >= w.Position && at < w.End() }
	runes := []rune(l.Payload)
	var out []model.Operation
	for i := 0; i < len(runes); {
		if covered(l.Position + i) {
			i++
			continue
		}
		j := i
		for j < len(runes) && !covered(l.Position+j) {
			j++
		}
		piece := l.WithPosition(l.Position + i)
		piece.Payload = string(runes[i:j])
		out = append(out, piece)
		i = j
	}
	return out
}

// updateInsert: the update's range shifts around the insert like deleted
// content would; an insert strictly inside the range splits the update's
// replacement around the preserved insert. The insert itself is never
// affected; updates do not move positions.
func updateInsert(upd, ins model.Operation) (updT, insT []model.Operation) {
	iu := ins.Units()
	switch {
	case ins.Position <= upd.Position:
		return ops(upd.WithPosition(upd.Position + iu)), ops(ins)
	case ins.Position >= upd.End():
		return ops(upd), ops(ins)
	default:
		off := ins.Position - upd.Position
		head, tail := splitPayload(upd.Payload, off)
		u1 := upd
		u1.Payload = head
		u2 := upd.WithPosition(upd.Position + off + iu)
		u2.Payload = tail
		return ops(u1, u2), ops(ins)
	}
}

// updateDelete: the part of the update's range that was concurrently
// deleted is discarded; the remainder (if any) survives with a clipped
// payload, anchored like a delete remainder. The delete is unaffected.
func updateDelete(upd, del model.Operation) (updT, delT []model.Operation) {
	switch {
	case upd.End() <= del.Position:
		return ops(upd), ops(del)
	case del.End() <= upd.Position:
		return ops(upd.WithPosition(upd.Position - del.Length)), ops(del)
	}
	if upd.Element != model.ElemText {
		// A unit element inside the deleted range: nothing left to update.
		return nil, ops(del)
	}
	runes := []rune(upd.Payload)
	kept := make([]rune, 0, len(runes))
	for i, r := range runes {
		at := upd.Position + i
		if at < del.Position || at >= del.End() {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil, ops(del)
	}
	u := upd.WithPosition(minInt(upd.Position, del.Position))
	u.Payload = string(kept)
	return ops(u), ops(del)
}

// splitPayload splits a text payload at a rune offset.
func splitPayload(s string, off int) (head, tail string) {
	runes := []rune(s)
	if off < 0 {
		off = 0
	}
	if off > len(runes) {
		off = len(runes)
	}
	return string(runes[:off]), string(runes[off:])
}
