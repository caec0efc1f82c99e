package harness

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/fuzzlens/calltree/internal/catalog"
)

// unknownLine marks a synthetic or unknown source line.
const unknownLine = -1

// Renderer expands call trees for a single entry point. Its visited set
// spans every Render call, so a resolved function appears at most once in
// the entry point's output.
type Renderer struct {
	cat      *catalog.Catalog
	visited  map[string]struct{}
	maxDepth int
}

// NewRenderer creates a renderer with an empty visited set. maxDepth > 0
// stops expanding edges below that depth; 0 means unlimited.
func NewRenderer(cat *catalog.Catalog, maxDepth int) *Renderer {
	return &Renderer{
		cat:      cat,
		visited:  make(map[string]struct{}),
		maxDepth: maxDepth,
	}
}

// Render returns the subtree for one top-level call, or "" when the call
// resolves to a function already rendered for this entry point.
func (r *Renderer) Render(name, path string, line int) string {
	var b strings.Builder
	r.render(&b, name, path, line, 1)
	return b.String()
}

func (r *Renderer) render(b *strings.Builder, name, path string, line, depth int) {
	rec, ok := r.cat.Resolve(name)
	if !ok {
		writeTreeLine(b, depth, name, path, line)
		return
	}
	if _, seen := r.visited[rec.Name]; seen {
		return
	}
	r.visited[rec.Name] = struct{}{}
	writeTreeLine(b, depth, rec.Name, path, line)

	if r.maxDepth > 0 && depth >= r.maxDepth {
		return
	}
	for _, edge := range rec.Callsites {
		edgePath, edgeLine, ok := edge.Location()
		if !ok {
			continue
		}
		r.render(b, edge.Dst, edgePath, edgeLine, depth+1)
	}
}

// writeTreeLine writes "<indent><name> <path> linenumber=<line>\n".
func writeTreeLine(b *strings.Builder, depth int, name, path string, line int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(stripSpace(name))
	b.WriteByte(' ')
	b.WriteString(path)
	b.WriteString(" linenumber=")
	b.WriteString(strconv.Itoa(normalizeLine(line)))
	b.WriteByte('\n')
}

func normalizeLine(line int) int {
	if line == 0 {
		return unknownLine
	}
	return line
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
