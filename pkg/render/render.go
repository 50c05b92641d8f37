// Package render converts a materialized segment sequence into
// user-facing output.
//
// The core only produces segments; how they look is this collaborator's
// problem. Dispatch is a switch over the closed element-kind tag; no
// virtual dispatch lives in the core types.
package render

import (
	"html"
	"strings"

	"github.com/rvoss/coedit/pkg/model"
)

// Text renders segments as plain text. Images render as a bracketed
// reference to their asset path.
func Text(segs []model.Segment) string {
	var b strings.Builder
	for _, seg := range segs {
		switch seg.Element {
		case model.ElemImage:
			b.WriteString("[image: ")
			b.WriteString(seg.Content)
			b.WriteString("]")
		default:
			// Text, NewLine and TabSpace runs carry their literal content.
			b.WriteString(seg.Content)
		}
	}
	return b.String()
}

// HTML renders segments as an HTML fragment.
func HTML(segs []model.Segment) string {
	var b strings.Builder
	for _, seg := range segs {
		switch seg.Element {
		case model.ElemText:
			b.WriteString(html.EscapeString(seg.Content))
		case model.ElemImage:
			b.WriteString(`<img src="`)
			b.WriteString(html.EscapeString(seg.Content))
			b.WriteString(`">`)
		case model.ElemNewLine:
			b.WriteString(strings.Repeat("<br>", len(seg.Content)))
		case model.ElemTabSpace:
			b.WriteString(strings.Repeat("&#9;", len(seg.Content)))
		}
	}
	return b.String()
}
