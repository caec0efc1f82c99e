package catalog

import "strings"

// PathSeparator separates the segments of a qualified Rust name.
const PathSeparator = "::"

// Resolve finds the best catalog match for a possibly partial call name.
//
// Strategies, in order:
//  1. exact name match;
//  2. the first registered name ending with name;
//  3. drop leading path segments one at a time and retry an exact match.
//
// Names added by Merge only take part in strategy 1.
//
// Strategy 2 walks names in registration order, so ties are broken by
// whichever record the upstream pass emitted first. Results are memoized
// since suffix matching scans the whole catalog.
func (c *Catalog) Resolve(name string) (*FunctionRecord, bool) {
	if rec, ok := c.byName[name]; ok {
		return rec, true
	}
	if r, ok := c.resolved.Get(name); ok {
		return r.rec, r.ok
	}
	rec, ok := c.resolveSlow(name)
	c.resolved.Add(name, resolution{rec: rec, ok: ok})
	return rec, ok
}

func (c *Catalog) resolveSlow(name string) (*FunctionRecord, bool) {
	for _, key := range c.order {
		if c.exactOnly[key] {
			continue
		}
		if strings.HasSuffix(key, name) {
			return c.byName[key], true
		}
	}

	segments := strings.Split(name, PathSeparator)
	for i := range segments {
		partial := strings.Join(segments[i:], PathSeparator)
		if rec, ok := c.byName[partial]; ok && !c.exactOnly[partial] {
			return rec, true
		}
	}

	return nil, false
}

// ReturnType resolves name and returns its declared return type. An empty
// declared type counts as unknown.
func (c *Catalog) ReturnType(name string) (string, bool) {
	rec, ok := c.Resolve(name)
	if !ok || rec.ReturnType == "" {
		return "", false
	}
	return rec.ReturnType, true
}
