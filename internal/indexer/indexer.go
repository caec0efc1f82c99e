// Package indexer keeps the persistent catalog in step with a fuzz
// project's sources and regenerates call trees when they change.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fuzzlens/calltree/internal/catalog"
	"github.com/fuzzlens/calltree/internal/catalog/store"
	"github.com/fuzzlens/calltree/internal/harness"
	"github.com/fuzzlens/calltree/internal/rustscan"
	"github.com/fuzzlens/calltree/internal/watcher"
)

// IndexerConfig holds configuration for the Indexer.
type IndexerConfig struct {
	Store *store.Store
	// Root is the fuzz project searched for entry points.
	Root string
	// ScanPaths are source trees parsed into the catalog. Empty disables
	// scanning; the store is then used as imported.
	ScanPaths []string
	// Generator configures regeneration; its Catalog is replaced by a
	// fresh store snapshot on every run.
	Generator harness.GeneratorConfig
	Exclude   []string
	// Metrics is optional; see NewMetrics.
	Metrics *Metrics
	Verbose bool
	Logger  func(format string, args ...any) // optional logger, defaults to fmt.Fprintf(os.Stderr, ...)
}

// IndexStats holds statistics about the indexing state.
type IndexStats struct {
	FilesIndexed  int       `json:"files_indexed"`
	Generations   int       `json:"generations"`
	Harnesses     int       `json:"harnesses"`
	LastIndexTime time.Time `json:"last_index_time"`
	Errors        []string  `json:"errors,omitempty"`
}

// Indexer orchestrates catalog scanning and call tree regeneration.
type Indexer struct {
	cfg     IndexerConfig
	matcher *watcher.Matcher
	log     func(format string, args ...any)

	mu           sync.Mutex
	filesIndexed int
	generations  int
	harnesses    int
	errors       []string
	lastIndex    time.Time
}

// NewIndexer creates a new Indexer with the given configuration.
func NewIndexer(cfg IndexerConfig) (*Indexer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("indexer requires a catalog store")
	}
	matcher, err := watcher.NewMatcher(cfg.ScanPaths, cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("load ignore patterns: %w", err)
	}

	logFn := cfg.Logger
	if logFn == nil {
		logFn = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	if cfg.Generator.Logger == nil {
		cfg.Generator.Logger = logFn
	}

	return &Indexer{cfg: cfg, matcher: matcher, log: logFn}, nil
}

// IndexFile re-parses one Rust file and replaces its records in the store.
// Files that are not Rust sources are ignored.
func (idx *Indexer) IndexFile(ctx context.Context, path string) error {
	if filepath.Ext(path) != ".rs" {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %s: %w", path, err)
	}

	records, err := rustscan.ParseFile(ctx, path, content)
	if err != nil {
		return fmt.Errorf("parse file %s: %w", path, err)
	}
	if _, err := idx.cfg.Store.DeleteByFile(path); err != nil {
		return fmt.Errorf("delete old records for %s: %w", path, err)
	}
	if err := idx.cfg.Store.PutRecords(records); err != nil {
		return fmt.Errorf("store records for %s: %w", path, err)
	}

	idx.mu.Lock()
	idx.filesIndexed++
	idx.lastIndex = time.Now()
	idx.mu.Unlock()
	idx.cfg.Metrics.fileIndexed()

	if idx.cfg.Verbose {
		idx.log("Indexed %s (%d functions)", path, len(records))
	}
	return nil
}

// RemoveFile drops the records of a deleted or renamed file.
func (idx *Indexer) RemoveFile(path string) error {
	n, err := idx.cfg.Store.DeleteByFile(path)
	if err != nil {
		return fmt.Errorf("delete records for %s: %w", path, err)
	}
	if idx.cfg.Verbose && n > 0 {
		idx.log("Removed %d functions from %s", n, path)
	}
	return nil
}

// IndexDirectory walks a tree and indexes every Rust file not excluded.
// Per-file failures are recorded in Stats and do not stop the walk.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) error {
	if idx.cfg.Verbose {
		idx.log("Scanning directory: %s", dir)
	}
	start := time.Now()
	count := 0

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible entries
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (d.Name() == "target" || idx.matcher.Match(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".rs" || idx.matcher.Match(path) {
			return nil
		}

		if err := idx.IndexFile(ctx, path); err != nil {
			idx.recordError(err.Error())
			return nil
		}
		count++
		return nil
	})

	if idx.cfg.Verbose {
		idx.log("  Directory complete: %s (%d files in %s)", dir, count, time.Since(start))
	}
	return err
}

// Generate snapshots the store, runs the generator over Root and stores the
// synthesized harness records.
func (idx *Indexer) Generate(ctx context.Context) (results map[string]catalog.FunctionRecord, err error) {
	start := time.Now()
	defer func() {
		idx.cfg.Metrics.generation(time.Since(start).Seconds(), len(results), err)
	}()

	cat, err := idx.cfg.Store.Catalog()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	gcfg := idx.cfg.Generator
	gcfg.Catalog = cat
	gcfg.Verbose = gcfg.Verbose || idx.cfg.Verbose

	results, err = harness.NewGenerator(gcfg).Run(ctx, idx.cfg.Root)
	if err != nil {
		return nil, err
	}
	if err := idx.cfg.Store.PutHarnessRecords(results); err != nil {
		return nil, fmt.Errorf("store harness records: %w", err)
	}

	idx.mu.Lock()
	idx.generations++
	idx.harnesses = len(results)
	idx.mu.Unlock()

	if idx.cfg.Verbose {
		idx.log("Generated %d call trees from %d catalog entries", len(results), cat.Len())
	}
	return results, nil
}

// Start indexes the scan paths, generates once, then watches for changes
// and regenerates after each batch. It blocks until ctx is cancelled.
func (idx *Indexer) Start(ctx context.Context) error {
	for _, path := range idx.cfg.ScanPaths {
		if err := idx.IndexDirectory(ctx, path); err != nil {
			return fmt.Errorf("initial index of %s: %w", path, err)
		}
	}
	if _, err := idx.Generate(ctx); err != nil {
		return fmt.Errorf("initial generation: %w", err)
	}

	exts := []string{".rs", ".toml"}
	if ext := idx.cfg.Generator.Extension; ext != "" && ext != ".rs" {
		exts = append(exts, ext)
	}
	w, err := watcher.New(watcher.Config{
		Paths:      idx.watchPaths(),
		Extensions: exts,
		Exclude:    idx.cfg.Exclude,
		Logger:     idx.log,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	batches, err := w.Start(ctx)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			idx.HandleBatch(ctx, batch)
		}
	}
}

// HandleBatch applies a batch of changes to the catalog and regenerates.
// Generation failures are recorded rather than returned so watching
// continues while a harness is mid-edit.
func (idx *Indexer) HandleBatch(ctx context.Context, batch watcher.Batch) {
	for _, evt := range batch.Events {
		if !idx.scanned(evt.Path) {
			continue
		}
		switch evt.Op {
		case watcher.Create, watcher.Write:
			if err := idx.IndexFile(ctx, evt.Path); err != nil {
				idx.recordError(fmt.Sprintf("index %s: %v", evt.Path, err))
			}
		case watcher.Remove, watcher.Rename:
			if err := idx.RemoveFile(evt.Path); err != nil {
				idx.recordError(err.Error())
			}
		}
	}

	if _, err := idx.Generate(ctx); err != nil {
		idx.recordError(fmt.Sprintf("generate: %v", err))
		idx.log("Regeneration failed: %v", err)
	}
}

// scanned reports whether path lies under one of the scan paths.
func (idx *Indexer) scanned(path string) bool {
	for _, root := range idx.cfg.ScanPaths {
		rel, err := filepath.Rel(root, path)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

// watchPaths is Root plus every scan path not already under it.
func (idx *Indexer) watchPaths() []string {
	paths := []string{idx.cfg.Root}
	for _, p := range idx.cfg.ScanPaths {
		rel, err := filepath.Rel(idx.cfg.Root, p)
		if err == nil && !strings.HasPrefix(rel, "..") {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

func (idx *Indexer) recordError(msg string) {
	idx.mu.Lock()
	idx.errors = append(idx.errors, msg)
	idx.mu.Unlock()
}

// Stats returns current indexing statistics.
func (idx *Indexer) Stats() IndexStats {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	stats := IndexStats{
		FilesIndexed:  idx.filesIndexed,
		Generations:   idx.generations,
		Harnesses:     idx.harnesses,
		LastIndexTime: idx.lastIndex,
		Errors:        make([]string, len(idx.errors)),
	}
	copy(stats.Errors, idx.errors)
	return stats
}
