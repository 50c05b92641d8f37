package render

import (
	"testing"

	"github.com/rvoss/coedit/pkg/model"
)

var mixed = []model.Segment{
	{Element: model.ElemText, Content: "Hello"},
	{Element: model.ElemNewLine, Content: "\n"},
	{Element: model.ElemTabSpace, Content: "\t"},
	{Element: model.ElemText, Content: "a < b & c"},
	{Element: model.ElemImage, Content: "assets/photo.png"},
	{Element: model.ElemText, Content: "end"},
}

func TestText(t *testing.T) {
	want := "Hello\n\ta < b & c[image: assets/photo.png]end"
	if got := Text(mixed); got != want {
		t.Fatalf("Text = %q, want %q", got, want)
	}
}

func TestText_Empty(t *testing.T) {
	if got := Text(nil); got != "" {
		t.Fatalf("Text(nil) = %q", got)
	}
}

func TestHTML(t *testing.T) {
	want := `Hello<br>&#9;a &lt; b &amp; c<img src="assets/photo.png">end`
	if got := HTML(mixed); got != want {
		t.Fatalf("HTML = %q, want %q", got, want)
	}
}

func TestHTML_EscapesImagePath(t *testing.T) {
	segs := []model.Segment{{Element: model.ElemImage, Content: `x"><script>`}}
	got := HTML(segs)
	want := `<img src="x&#34;&gt;&lt;script&gt;">`
	if got != want {
		t.Fatalf("HTML = %q, want %q", got, want)
	}
}

func TestHTML_RunsExpandPerUnit(t *testing.T) {
	segs := []model.Segment{{Element: model.ElemNewLine, Content: "\n\n\n"}}
	if got := HTML(segs); got != "<br><br><br>" {
		t.Fatalf("HTML = %q, want three breaks", got)
	}
}
