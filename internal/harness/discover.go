package harness

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// DiscoverOptions controls entry-point discovery.
type DiscoverOptions struct {
	// Trigger is the macro identifier marking an entry point.
	Trigger string
	// Extension is the source file extension, including the dot.
	Extension string
	// Structural accepts a file only when it parses and contains a resolved
	// invocation of the trigger macro, instead of a raw substring match.
	Structural bool
}

// Discover returns every file under root with the configured extension that
// invokes the trigger macro, in lexical walk order. Symbolic links are
// followed; a link back to a directory already being walked is skipped and
// a dangling link is ignored. Any unreadable directory or file aborts
// discovery with a *DiscoveryError.
func Discover(ctx context.Context, root string, opts DiscoverOptions) ([]string, error) {
	d := &discoverer{
		opts:  opts,
		token: []byte(opts.Trigger + "!"),
		stack: make(map[string]bool),
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, &DiscoveryError{Path: root, Err: err}
	}
	if !info.IsDir() {
		if err := d.visitFile(ctx, root); err != nil {
			return nil, err
		}
		return d.found, nil
	}

	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, &DiscoveryError{Path: root, Err: err}
	}
	if err := d.walk(ctx, root, resolved); err != nil {
		return nil, err
	}
	return d.found, nil
}

type discoverer struct {
	opts  DiscoverOptions
	token []byte
	found []string
	// stack holds the resolved paths of the directories being walked.
	stack map[string]bool
}

func (d *discoverer) walk(ctx context.Context, dir, resolved string) error {
	d.stack[resolved] = true
	defer delete(d.stack, resolved)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return &DiscoveryError{Path: dir, Err: err}
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, e.Name())
		childResolved := filepath.Join(resolved, e.Name())
		mode := e.Type()

		if mode&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			mode = info.Mode().Type()
			if mode.IsDir() {
				if childResolved, err = filepath.EvalSymlinks(path); err != nil {
					return &DiscoveryError{Path: path, Err: err}
				}
				if d.stack[childResolved] {
					continue
				}
			}
		}

		switch {
		case mode.IsDir():
			if err := d.walk(ctx, path, childResolved); err != nil {
				return err
			}
		case mode.IsRegular():
			if err := d.visitFile(ctx, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *discoverer) visitFile(ctx context.Context, path string) error {
	if filepath.Ext(path) != d.opts.Extension {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return &DiscoveryError{Path: path, Err: err}
	}
	if !bytes.Contains(content, d.token) {
		return nil
	}
	if d.opts.Structural && !invokesTrigger(ctx, content, d.opts.Trigger) {
		return nil
	}
	d.found = append(d.found, path)
	return nil
}

// invokesTrigger reports whether content holds a parsed macro invocation of
// trigger. Mentions inside comments and string literals do not count.
func invokesTrigger(ctx context.Context, content []byte, trigger string) bool {
	tree, err := parseRust(ctx, content)
	if err != nil {
		return false
	}
	defer tree.Close()
	return len(findMacros(tree.RootNode(), content, trigger, nil)) > 0
}
