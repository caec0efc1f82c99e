package catalog

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// resolveCacheSize bounds the memoized Resolve results per catalog.
const resolveCacheSize = 4096

// resolution is a memoized Resolve outcome, misses included.
type resolution struct {
	rec *FunctionRecord
	ok  bool
}

// Catalog is an immutable name->record snapshot. It is safe for concurrent
// readers; nothing mutates it after New returns apart from the internally
// synchronized resolve cache.
type Catalog struct {
	byName map[string]*FunctionRecord
	// order lists each distinct name once, in first-registration order.
	order []string
	// exactOnly names were introduced by Merge and resolve by exact name only.
	exactOnly map[string]bool
	resolved  *lru.Cache[string, resolution]
}

// New builds a catalog from records. When names repeat, the last record wins
// but the name keeps its first registration position.
func New(records []FunctionRecord) *Catalog {
	c := &Catalog{
		byName: make(map[string]*FunctionRecord, len(records)),
		order:  make([]string, 0, len(records)),
	}
	for i := range records {
		rec := records[i]
		if _, exists := c.byName[rec.Name]; !exists {
			c.order = append(c.order, rec.Name)
		}
		c.byName[rec.Name] = &rec
	}
	// lru.New only fails for a non-positive size.
	c.resolved, _ = lru.New[string, resolution](resolveCacheSize)
	return c
}

// Len returns the number of distinct names.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Get returns the record registered under exactly name.
func (c *Catalog) Get(name string) (*FunctionRecord, bool) {
	rec, ok := c.byName[name]
	return rec, ok
}

// Records returns copies of all records in registration order.
func (c *Catalog) Records() []FunctionRecord {
	out := make([]FunctionRecord, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, *c.byName[name])
	}
	return out
}

// Merge returns a new catalog with the harness records appended after the
// existing ones. Keys are visited in sorted order so the result does not
// depend on map iteration. Names first introduced by the harness records
// resolve by exact match only. The receiver is not modified.
func (c *Catalog) Merge(harnesses map[string]FunctionRecord) *Catalog {
	keys := make([]string, 0, len(harnesses))
	for k := range harnesses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := c.Records()
	for _, k := range keys {
		records = append(records, harnesses[k])
	}
	merged := New(records)
	merged.exactOnly = make(map[string]bool, len(c.exactOnly)+len(keys))
	for name := range c.exactOnly {
		merged.exactOnly[name] = true
	}
	for _, k := range keys {
		if name := harnesses[k].Name; c.byName[name] == nil {
			merged.exactOnly[name] = true
		}
	}
	return merged
}
