package watcher

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ignoreRule is one exclude glob or .gitignore line. Rules loaded from a
// .gitignore only apply below the directory holding it.
type ignoreRule struct {
	pattern  string
	negation bool
	base     string
}

// Matcher decides which paths under a fuzz project are not worth watching.
// Later rules win, so a negated .gitignore line can re-include a path.
type Matcher struct {
	rules []ignoreRule
}

// NewMatcher builds a matcher from exclude globs plus every .gitignore
// found under roots. Cargo's target directory is never descended into.
func NewMatcher(roots, exclude []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range exclude {
		m.rules = append(m.rules, parseRule(p, ""))
	}

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable entries are simply not watched
			}
			if d.IsDir() {
				switch d.Name() {
				case ".git", "target":
					return filepath.SkipDir
				}
				return nil
			}
			if d.Name() != ".gitignore" {
				return nil
			}
			rules, err := loadIgnoreFile(path)
			if err != nil {
				return nil
			}
			m.rules = append(m.rules, rules...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Match reports whether path is ignored.
func (m *Matcher) Match(path string) bool {
	ignored := false
	for _, r := range m.rules {
		if r.matches(path) {
			ignored = !r.negation
		}
	}
	return ignored
}

func loadIgnoreFile(path string) ([]ignoreRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	base := filepath.Dir(path)
	var rules []ignoreRule
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, parseRule(line, base))
	}
	return rules, sc.Err()
}

func parseRule(pattern, base string) ignoreRule {
	r := ignoreRule{base: base}
	if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = pattern[1:]
	}
	// A trailing slash marks a directory; paths are matched before stat, so
	// any component match is treated the same.
	r.pattern = strings.TrimSuffix(pattern, "/")
	return r
}

func (r ignoreRule) matches(path string) bool {
	rel := path
	if r.base != "" {
		var err error
		rel, err = filepath.Rel(r.base, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return false
		}
	}

	if strings.Contains(r.pattern, "**") {
		return matchSegments(splitPath(r.pattern), splitPath(rel))
	}
	if strings.Contains(r.pattern, "/") {
		ok, _ := filepath.Match(r.pattern, filepath.ToSlash(rel))
		return ok
	}
	for _, part := range splitPath(rel) {
		if ok, _ := filepath.Match(r.pattern, part); ok {
			return true
		}
	}
	return false
}

// matchSegments matches path components where "**" spans zero or more
// directories.
func matchSegments(pattern, parts []string) bool {
	if len(pattern) == 0 {
		return len(parts) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pattern[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	if ok, _ := filepath.Match(pattern[0], parts[0]); !ok {
		return false
	}
	return matchSegments(pattern[1:], parts[1:])
}

func splitPath(path string) []string {
	var out []string
	for _, p := range strings.Split(filepath.ToSlash(path), "/") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
