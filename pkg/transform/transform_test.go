package transform

import (
	"math/rand"
	"testing"

	"github.com/rvoss/coedit/pkg/document"
	"github.com/rvoss/coedit/pkg/model"
)

func ins(client string, pos int, payload string) model.Operation {
	return model.Operation{
		ID: client + "/i/" + payload, ClientID: client,
		Kind: model.OpInsert, Position: pos, BasePosition: pos,
		Payload: payload, Element: model.ElemText,
	}
}

func del(client string, pos, n int) model.Operation {
	return model.Operation{
		ID: client + "/d", ClientID: client,
		Kind: model.OpDelete, Position: pos, BasePosition: pos, Length: n,
		Element: model.ElemText,
	}
}

func upd(client string, pos int, payload string, ts int64) model.Operation {
	return model.Operation{
		ID: client + "/u/" + payload, ClientID: client,
		Kind: model.OpUpdate, Position: pos, BasePosition: pos,
		Payload: payload, Element: model.ElemText, Timestamp: ts,
	}
}

func docWith(text string) *document.State {
	s := document.NewState("d")
	if text != "" {
		s.Apply(model.LogEntry{Ops: []model.Operation{
			{Kind: model.OpInsert, Element: model.ElemText, Payload: text},
		}})
	}
	return s
}

// assertConverge applies the OT diamond in both orders and checks that
// the results agree (and match want, when given).
func assertConverge(t *testing.T, base string, a, b model.Operation, want string) {
	t.Helper()
	aT, bT := Pair(a, b)

	s1 := docWith(base)
	s1.Apply(model.LogEntry{Ops: []model.Operation{a}})
	s1.Apply(model.LogEntry{Ops: bT})

	s2 := docWith(base)
	s2.Apply(model.LogEntry{Ops: []model.Operation{b}})
	s2.Apply(model.LogEntry{Ops: aT})

	if s1.Materialize() != s2.Materialize() {
		t.Fatalf("diverged: a-then-b' = %q, b-then-a' = %q (a=%+v b=%+v)",
			s1.Materialize(), s2.Materialize(), a, b)
	}
	if want != "" && s1.Materialize() != want {
		t.Fatalf("converged to %q, want %q", s1.Materialize(), want)
	}
}

func TestPair_InsertInsert_DistinctPositions(t *testing.T) {
	assertConverge(t, "abcdef", ins("1", 1, "X"), ins("2", 4, "Y"), "aXbcdYef")
}

func TestPair_InsertInsert_EqualPositionTieBreak(t *testing.T) {
	// The lower client ID's content ends up first in both orders.
	assertConverge(t, "ab", ins("1", 1, "X"), ins("2", 1, "Y"), "aXYb")
	assertConverge(t, "ab", ins("2", 1, "Y"), ins("1", 1, "X"), "aXYb")
}

func TestPair_InsertBeforeDelete(t *testing.T) {
	assertConverge(t, "abcdef", ins("1", 1, "X"), del("2", 3, 2), "aXbcf")
}

func TestPair_InsertAfterDelete(t *testing.T) {
	assertConverge(t, "abcdef", ins("1", 5, "X"), del("2", 1, 2), "adeXf")
}

func TestPair_InsertInsideDelete_ContentPreserved(t *testing.T) {
	// Concurrent Delete(1,3) and Insert(2,"X") on "abcdef" must converge
	// to "aXef": the insert is preserved at the start of the deleted
	// range, never discarded.
	assertConverge(t, "abcdef", ins("1", 2, "X"), del("2", 1, 3), "aXef")
}

func TestPair_InsertInsideDelete_SplitsDelete(t *testing.T) {
	_, delT := Pair(ins("1", 2, "X"), del("2", 1, 3))
	if len(delT) != 2 {
		t.Fatalf("expected the delete to split into 2, got %d: %+v", len(delT), delT)
	}
	if delT[0].Position != 1 || delT[0].Length != 1 {
		t.Fatalf("first piece = %+v, want Delete(1,1)", delT[0])
	}
	if delT[1].Position != 2 || delT[1].Length != 2 {
		t.Fatalf("second piece = %+v, want Delete(2,2)", delT[1])
	}
}

func TestPair_DeleteDelete_Disjoint(t *testing.T) {
	assertConverge(t, "abcdef", del("1", 0, 2), del("2", 4, 2), "cd")
}

func TestPair_DeleteDelete_Overlapping(t *testing.T) {
	// Overlapping deletes union: [1,4) and [2,5) remove "bcde".
	assertConverge(t, "abcdef", del("1", 1, 3), del("2", 2, 3), "af")
}

func TestPair_DeleteDelete_Contained(t *testing.T) {
	assertConverge(t, "abcdef", del("1", 1, 4), del("2", 2, 2), "af")
}

func TestPair_DeleteDelete_IdenticalBecomesNoop(t *testing.T) {
	a, b := del("1", 2, 2), del("2", 2, 2)
	aT, bT := Pair(a, b)
	if len(aT) != 0 || len(bT) != 0 {
		t.Fatalf("identical deletes should absorb each other, got %+v / %+v", aT, bT)
	}
	assertConverge(t, "abcdef", a, b, "abef")
}

func TestPair_UpdateUpdate_LaterTimestampWins(t *testing.T) {
	assertConverge(t, "abcdef", upd("1", 1, "XY", 10), upd("2", 1, "PQ", 5), "aXYdef")
	assertConverge(t, "abcdef", upd("2", 1, "PQ", 5), upd("1", 1, "XY", 10), "aXYdef")
}

func TestPair_UpdateUpdate_TimestampTieLowerClientWins(t *testing.T) {
	assertConverge(t, "abcdef", upd("1", 1, "XY", 7), upd("2", 1, "PQ", 7), "aXYdef")
}

func TestPair_UpdateUpdate_PartialOverlapLoserKeepsRemainder(t *testing.T) {
	// a wins [1,4); b loses but its position 4 lies outside a's range and
	// survives.
	assertConverge(t, "abcdef", upd("1", 1, "XYZ", 9), upd("2", 3, "PQ", 5), "aXYZQf")
	assertConverge(t, "abcdef", upd("2", 3, "PQ", 5), upd("1", 1, "XYZ", 9), "aXYZQf")
}

func TestPair_UpdateUpdate_WinnerInsideLoserSplitsRemainder(t *testing.T) {
	_, bT := Pair(upd("1", 2, "XY", 9), upd("2", 0, "PQRSTU", 5))
	if len(bT) != 2 {
		t.Fatalf("expected the loser to split into 2 pieces, got %+v", bT)
	}
	if bT[0].Position != 0 || bT[0].Payload != "PQ" {
		t.Fatalf("first piece = %+v, want Update(0,\"PQ\")", bT[0])
	}
	if bT[1].Position != 4 || bT[1].Payload != "TU" {
		t.Fatalf("second piece = %+v, want Update(4,\"TU\")", bT[1])
	}
	assertConverge(t, "abcdef", upd("1", 2, "XY", 9), upd("2", 0, "PQRSTU", 5), "PQXYTU")
}

func TestPair_UpdateUpdate_Disjoint(t *testing.T) {
	assertConverge(t, "abcdef", upd("1", 0, "Z", 5), upd("2", 3, "W", 9), "ZbcWef")
}

func TestPair_UpdateVsInsert_Before(t *testing.T) {
	assertConverge(t, "abcdef", upd("1", 2, "XY", 5), ins("2", 1, "Q"), "aQbXYef")
}

func TestPair_UpdateVsInsert_InsideSplitsUpdate(t *testing.T) {
	assertConverge(t, "abcdef", upd("1", 1, "XYZ", 5), ins("2", 2, "Q"), "aXQYZef")
}

func TestPair_UpdateVsDelete_PartialOverlap(t *testing.T) {
	assertConverge(t, "abcdef", upd("1", 1, "XYZ", 5), del("2", 2, 4), "aX")
}

func TestPair_UpdateVsDelete_FullyDeletedBecomesNoop(t *testing.T) {
	updT, _ := Pair(upd("1", 2, "Q", 5), del("2", 0, 6))
	if len(updT) != 0 {
		t.Fatalf("update of fully deleted range should be a no-op, got %+v", updT)
	}
	assertConverge(t, "abcdef", upd("1", 2, "Q", 5), del("2", 0, 6), "")
}

func TestPair_NonTextInsertTransformsPositionally(t *testing.T) {
	img := model.Operation{
		ID: "1/img", ClientID: "1",
		Kind: model.OpInsert, Position: 2, BasePosition: 2,
		Payload: "shot.png", Element: model.ElemImage,
	}
	// Tie at position 2: client "1" (the image) goes first.
	assertConverge(t, "abcd", img, ins("2", 2, "Y"), "abshot.pngYcd")
}

func TestRebase_SplitThenShift(t *testing.T) {
	// A delete split by one entry keeps transforming correctly against
	// the next.
	in := []model.Operation{del("3", 1, 3)}
	in = Rebase(in, model.LogEntry{Ops: []model.Operation{ins("1", 2, "X")}})
	if len(in) != 2 {
		t.Fatalf("expected split into 2 deletes, got %+v", in)
	}
	in = Rebase(in, model.LogEntry{Ops: []model.Operation{ins("2", 0, "Z")}})
	if len(in) != 2 {
		t.Fatalf("expected 2 deletes after shift, got %+v", in)
	}
	if in[0].Position != 2 || in[0].Length != 1 {
		t.Fatalf("first piece = %+v, want Delete(2,1)", in[0])
	}
	if in[1].Position != 3 || in[1].Length != 2 {
		t.Fatalf("second piece = %+v, want Delete(3,2)", in[1])
	}
}

func TestRebase_CollapsedInsertsOrderBySubmittedPosition(t *testing.T) {
	// Two inserts inside a concurrently deleted range collapse to the same
	// point. The one submitted at the lower position must end up first no
	// matter which reached the log first; otherwise the outcome would
	// disagree with arrival orders where the delete reaches the log last
	// and the split delete keeps the inserts apart.
	d := model.LogEntry{Ops: []model.Operation{del("1", 1, 8)}}

	first := Rebase([]model.Operation{ins("2", 9, "vqp")}, d)
	if len(first) != 1 || first[0].Position != 1 {
		t.Fatalf("earlier arrival = %+v, want collapsed to position 1", first)
	}
	second := Rebase([]model.Operation{ins("3", 6, "pq")}, d)
	second = Rebase(second, model.LogEntry{Ops: first})
	if len(second) != 1 || second[0].Position != 1 {
		t.Fatalf("lower-position insert = %+v, want position 1, ahead of the earlier arrival", second)
	}

	// Reversed arrival: the lower-position insert is already in the log,
	// so the higher-position one shifts past its content.
	first = Rebase([]model.Operation{ins("3", 6, "pq")}, d)
	second = Rebase([]model.Operation{ins("2", 9, "vqp")}, d)
	second = Rebase(second, model.LogEntry{Ops: first})
	if len(second) != 1 || second[0].Position != 3 {
		t.Fatalf("higher-position insert = %+v, want shifted to position 3", second)
	}
}

func TestRebase_FullyAbsorbedReturnsEmpty(t *testing.T) {
	in := []model.Operation{del("2", 1, 2)}
	in = Rebase(in, model.LogEntry{Ops: []model.Operation{del("1", 0, 6)}})
	if len(in) != 0 {
		t.Fatalf("expected full absorption, got %+v", in)
	}
}

func TestPair_ConvergenceRandomized(t *testing.T) {
	// Random concurrent pairs over a fixed base must always converge.
	r := rand.New(rand.NewSource(42))
	const base = "abcdefghij"
	for i := 0; i < 1000; i++ {
		a := randomOp(r, "1", len(base))
		b := randomOp(r, "2", len(base))
		assertConverge(t, base, a, b, "")
	}
}

func randomOp(r *rand.Rand, client string, docLen int) model.Operation {
	letters := "nopqrstuvw"
	payload := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = letters[r.Intn(len(letters))]
		}
		return string(b)
	}
	switch r.Intn(3) {
	case 0:
		return ins(client, r.Intn(docLen+1), payload(1+r.Intn(3)))
	case 1:
		pos := r.Intn(docLen)
		return del(client, pos, 1+r.Intn(docLen-pos))
	default:
		pos := r.Intn(docLen)
		n := 1 + r.Intn(docLen-pos)
		op := upd(client, pos, payload(n), int64(1+r.Intn(4)))
		return op
	}
}
