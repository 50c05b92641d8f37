// segment.go implements the segment sequence a document is made of.
//
// A segment is a contiguous run of one element kind. Text, NewLine and
// TabSpace runs hold repeatable content and merge with same-kind
// neighbors; an Image is always a single unit holding its asset path, so
// two adjacent images never merge (merging would require re-splitting on
// the next edit). The normalize pass maintains the invariant that no two
// adjacent segments share a mergeable element kind and no segment is
// empty.
package document

import "github.com/rvoss/coedit/pkg/model"

// mergeable reports whether adjacent segments of this kind collapse into
// one run.
func mergeable(k model.ElementKind) bool { return k != model.ElemImage }

// locate maps a logical unit offset to (segment index, offset within that
// segment). pos == total length maps to (len(segs), 0).
func locate(segs []model.Segment, pos int) (int, int) {
	for i, seg := range segs {
		n := seg.Units()
		if pos < n {
			return i, pos
		}
		pos -= n
	}
	return len(segs), 0
}

// splice inserts seg at logical offset pos, splitting the run it lands
// inside. pos must already be clamped to [0, length].
func splice(segs []model.Segment, pos int, seg model.Segment) []model.Segment {
	i, off := locate(segs, pos)
	out := make([]model.Segment, 0, len(segs)+2)
	if off == 0 {
		out = append(out, segs[:i]...)
		out = append(out, seg)
		out = append(out, segs[i:]...)
	} else {
		left, right := splitSegment(segs[i], off)
		out = append(out, segs[:i]...)
		out = append(out, left, seg, right)
		out = append(out, segs[i+1:]...)
	}
	return normalize(out)
}

// cut removes n logical units starting at pos. Both must already be
// clamped so that [pos, pos+n) lies within the document.
func cut(segs []model.Segment, pos, n int) []model.Segment {
	if n <= 0 {
		return segs
	}
	out := make([]model.Segment, 0, len(segs)+1)
	end := pos + n
	at := 0
	for _, seg := range segs {
		u := seg.Units()
		segStart, segEnd := at, at+u
		at = segEnd
		if segEnd <= pos || segStart >= end {
			out = append(out, seg)
			continue
		}
		// Keep the uncovered head and tail of the run, if any.
		if segStart < pos {
			head, _ := splitSegment(seg, pos-segStart)
			out = append(out, head)
		}
		if segEnd > end {
			_, tail := splitSegment(seg, end-segStart)
			out = append(out, tail)
		}
	}
	return normalize(out)
}

// splitSegment splits a run at a unit offset strictly inside it. Images
// are single units and can never be split.
func splitSegment(seg model.Segment, off int) (model.Segment, model.Segment) {
	runes := []rune(seg.Content)
	return model.Segment{Element: seg.Element, Content: string(runes[:off])},
		model.Segment{Element: seg.Element, Content: string(runes[off:])}
}

// normalize drops empty segments and merges adjacent mergeable runs of
// the same kind.
func normalize(segs []model.Segment) []model.Segment {
	out := segs[:0]
	for _, seg := range segs {
		if seg.Units() == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Element == seg.Element && mergeable(seg.Element) {
			out[n-1].Content += seg.Content
			continue
		}
		out = append(out, seg)
	}
	return out
}

func totalUnits(segs []model.Segment) int {
	n := 0
	for _, seg := range segs {
		n += seg.Units()
	}
	return n
}
