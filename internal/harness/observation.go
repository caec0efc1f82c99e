package harness

import (
	"sort"
	"strings"

	"github.com/fuzzlens/calltree/internal/catalog"
)

// Observation is one call seen inside an entry point body.
type Observation struct {
	Name string
	Line int
}

// NormalizeObservations collapses exact duplicates, orders the rest by line
// (first-seen order within a line) and back-fills qualifiers.
func NormalizeObservations(raw []Observation) []Observation {
	seen := make(map[Observation]struct{}, len(raw))
	unique := make([]Observation, 0, len(raw))
	for _, o := range raw {
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		unique = append(unique, o)
	}
	sort.SliceStable(unique, func(i, j int) bool { return unique[i].Line < unique[j].Line })
	return BackfillQualifiers(unique)
}

// BackfillQualifiers prefixes every unqualified name with the qualifier of
// the most recent qualified name before it. Names ahead of the first
// qualified name are left alone. The input is not modified.
func BackfillQualifiers(obs []Observation) []Observation {
	out := make([]Observation, len(obs))
	qualifier := ""
	for i, o := range obs {
		if pos := strings.LastIndex(o.Name, catalog.PathSeparator); pos >= 0 {
			qualifier = o.Name[:pos]
		} else if qualifier != "" {
			o.Name = qualifier + catalog.PathSeparator + o.Name
		}
		out[i] = o
	}
	return out
}
