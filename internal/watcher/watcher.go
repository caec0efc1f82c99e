// Package watcher reports debounced source changes in a fuzz project so
// call trees can be regenerated while harnesses are edited.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	Create EventOp = iota
	Write
	Remove
	Rename
)

// String returns the string representation of EventOp.
func (op EventOp) String() string {
	switch op {
	case Create:
		return "Create"
	case Write:
		return "Write"
	case Remove:
		return "Remove"
	case Rename:
		return "Rename"
	default:
		return "Unknown"
	}
}

// Event is the last change seen for one path within a batch.
type Event struct {
	Path string
	Op   EventOp
	Time time.Time
}

// Batch holds every path that changed during one quiet window, sorted by
// path. A save that touches several files produces a single batch.
type Batch struct {
	Events []Event
}

// Paths returns the changed paths in the batch.
func (b Batch) Paths() []string {
	out := make([]string, len(b.Events))
	for i, e := range b.Events {
		out[i] = e.Path
	}
	return out
}

// DefaultDebounce is the quiet window used when Config.Debounce is zero.
const DefaultDebounce = 150 * time.Millisecond

// Config holds configuration for the watcher.
type Config struct {
	Paths []string
	// Extensions limits reported files, e.g. ".rs" and ".toml". Empty
	// reports every file.
	Extensions []string
	Exclude    []string
	Debounce   time.Duration
	Logger     func(format string, args ...any)
}

// Watcher watches directory trees and emits debounced batches.
type Watcher struct {
	cfg     Config
	matcher *Matcher
	exts    map[string]bool

	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	closed bool
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	matcher, err := NewMatcher(cfg.Paths, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[e] = true
	}
	return &Watcher{cfg: cfg, matcher: matcher, exts: exts}, nil
}

// Start adds the configured trees and returns the batch channel, which is
// closed when ctx is cancelled or the watcher is closed.
func (w *Watcher) Start(ctx context.Context) (<-chan Batch, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	for _, root := range w.cfg.Paths {
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	out := make(chan Batch, 16)
	go w.eventLoop(ctx, fsw, out)
	return out, nil
}

// Close shuts down the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible entries
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.matcher.Match(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// wanted reports whether a file event should reach the caller.
func (w *Watcher) wanted(path string) bool {
	if w.matcher.Match(path) {
		return false
	}
	return len(w.exts) == 0 || w.exts[filepath.Ext(path)]
}

func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Batch) {
	defer close(out)

	pending := make(map[string]Event)
	timer := time.NewTimer(w.cfg.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	flush := func() bool {
		if len(pending) == 0 {
			return true
		}
		batch := Batch{Events: make([]Event, 0, len(pending))}
		for _, e := range pending {
			batch.Events = append(batch.Events, e)
		}
		sort.Slice(batch.Events, func(i, j int) bool { return batch.Events[i].Path < batch.Events[j].Path })
		pending = make(map[string]Event)
		select {
		case out <- batch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			if !flush() {
				return
			}

		case fsEvent, ok := <-fsw.Events:
			if !ok {
				return
			}
			op, valid := convertOp(fsEvent.Op)
			if !valid {
				continue
			}

			// New directories are watched too; their files arrive as
			// separate events.
			if op == Create {
				if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
					if !w.matcher.Match(fsEvent.Name) {
						_ = w.addRecursive(fsEvent.Name)
					}
					continue
				}
			}
			if !w.wanted(fsEvent.Name) {
				continue
			}

			pending[fsEvent.Name] = Event{Path: fsEvent.Name, Op: op, Time: time.Now()}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.cfg.Debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if w.cfg.Logger != nil {
				w.cfg.Logger("watch error: %v", err)
			}
		}
	}
}

func convertOp(op fsnotify.Op) (EventOp, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return Create, true
	case op.Has(fsnotify.Write):
		return Write, true
	case op.Has(fsnotify.Remove):
		return Remove, true
	case op.Has(fsnotify.Rename):
		return Rename, true
	default:
		return 0, false
	}
}
