package harness

import (
	"testing"

	"github.com/fuzzlens/calltree/internal/catalog"
)

func TestRenderLineNormalization(t *testing.T) {
	tests := []struct {
		line int
		want string
	}{
		{0, "  leaf entry.rs linenumber=-1\n"},
		{5, "  leaf entry.rs linenumber=5\n"},
		{-1, "  leaf entry.rs linenumber=-1\n"},
		{-7, "  leaf entry.rs linenumber=-7\n"},
	}
	for _, tt := range tests {
		r := NewRenderer(catalog.New(nil), 0)
		if got := r.Render("leaf", "entry.rs", tt.line); got != tt.want {
			t.Errorf("Render(line=%d) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestRenderUnresolvedLeaf(t *testing.T) {
	cat := catalog.New([]catalog.FunctionRecord{{Name: "known"}})
	r := NewRenderer(cat, 0)

	got := r.Render("unknown_fn", "entry.rs", 3)
	if got != "  unknown_fn entry.rs linenumber=3\n" {
		t.Errorf("got %q", got)
	}
	// Unresolved names are not tracked, so they may repeat.
	if again := r.Render("unknown_fn", "entry.rs", 4); again == "" {
		t.Error("unresolved leaf should render every time")
	}
}

func TestRenderStripsWhitespace(t *testing.T) {
	cat := catalog.New([]catalog.FunctionRecord{{Name: "<Vec<u8> as Read>::read"}})
	r := NewRenderer(cat, 0)
	if got := r.Render("<Vec<u8> as Read>::read", "e.rs", 1); got != "  <Vec<u8>asRead>::read e.rs linenumber=1\n" {
		t.Errorf("got %q", got)
	}
}

func TestRenderCycleAndDiamond(t *testing.T) {
	cat := catalog.New([]catalog.FunctionRecord{
		{Name: "a", Callsites: []catalog.CallEdge{{Src: "x.rs,1", Dst: "b"}, {Src: "x.rs,2", Dst: "c"}}},
		{Name: "b", Callsites: []catalog.CallEdge{{Src: "x.rs,3", Dst: "d"}, {Src: "x.rs,4", Dst: "a"}}},
		{Name: "c", Callsites: []catalog.CallEdge{{Src: "x.rs,5", Dst: "d"}}},
		{Name: "d"},
	})
	r := NewRenderer(cat, 0)

	want := "  a e.rs linenumber=9\n" +
		"    b x.rs linenumber=1\n" +
		"      d x.rs linenumber=3\n" +
		"    c x.rs linenumber=2\n"
	if got := r.Render("a", "e.rs", 9); got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}

	// The visited set spans every call on the same renderer.
	if got := r.Render("d", "e.rs", 10); got != "" {
		t.Errorf("already rendered function should be pruned, got %q", got)
	}
}

func TestRenderMaxDepth(t *testing.T) {
	cat := catalog.New([]catalog.FunctionRecord{
		{Name: "top", Callsites: []catalog.CallEdge{{Src: "x.rs,1", Dst: "mid"}}},
		{Name: "mid", Callsites: []catalog.CallEdge{{Src: "x.rs,2", Dst: "bottom"}}},
		{Name: "bottom"},
	})
	r := NewRenderer(cat, 2)

	want := "  top e.rs linenumber=1\n" +
		"    mid x.rs linenumber=1\n"
	if got := r.Render("top", "e.rs", 1); got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestRenderResolvesPartialNames(t *testing.T) {
	cat := catalog.New([]catalog.FunctionRecord{
		{Name: "crate::codec::Decoder::feed", Callsites: []catalog.CallEdge{{Src: "src/codec.rs,40", Dst: "self::parse_header"}}},
		{Name: "parse_header"},
	})
	r := NewRenderer(cat, 0)

	want := "  crate::codec::Decoder::feed e.rs linenumber=2\n" +
		"    parse_header src/codec.rs linenumber=40\n"
	if got := r.Render("Decoder::feed", "e.rs", 2); got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}
