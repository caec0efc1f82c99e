package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fuzzlens/calltree/internal/catalog"
)

// Defaults for GeneratorConfig.
const (
	DefaultTrigger   = "fuzz_target"
	DefaultExtension = ".rs"
)

// GeneratorConfig holds configuration for the Generator.
type GeneratorConfig struct {
	Catalog    *catalog.Catalog
	Trigger    string // macro marking an entry point, defaults to fuzz_target
	Extension  string // source extension, defaults to .rs
	Structural bool   // parse candidates instead of substring matching
	OutputDir  string // where fuzzerLogFile-*.data files go, defaults to "."
	MaxDepth   int    // 0 = unlimited
	// Workers > 1 processes entry points in parallel.
	Workers int
	// ContinueOnError logs and skips entry points that fail to parse or
	// write instead of aborting the run.
	ContinueOnError bool
	Verbose         bool
	Logger          func(format string, args ...any) // optional logger, defaults to fmt.Fprintf(os.Stderr, ...)
}

// Generator produces call tree files for every entry point under a root.
type Generator struct {
	cfg GeneratorConfig
	log func(format string, args ...any)

	mu      sync.Mutex
	skipped []string
}

// NewGenerator creates a Generator, filling in defaults.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.New(nil)
	}
	if cfg.Trigger == "" {
		cfg.Trigger = DefaultTrigger
	}
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	logFn := cfg.Logger
	if logFn == nil {
		logFn = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	return &Generator{cfg: cfg, log: logFn}
}

// Skipped returns the entry points skipped because of isolated failures.
func (g *Generator) Skipped() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.skipped...)
}

// Run discovers entry points under root, writes one call tree file per entry
// point and returns the synthesized entry-point records keyed by path.
func (g *Generator) Run(ctx context.Context, root string) (map[string]catalog.FunctionRecord, error) {
	entries, err := Discover(ctx, root, DiscoverOptions{
		Trigger:    g.cfg.Trigger,
		Extension:  g.cfg.Extension,
		Structural: g.cfg.Structural,
	})
	if err != nil {
		return nil, err
	}

	if g.cfg.Verbose {
		g.log("Found %d entry points under %s", len(entries), root)
		g.checkCargoTargets(root, entries)
	}

	if err := os.MkdirAll(g.cfg.OutputDir, 0755); err != nil {
		return nil, &WriteError{Path: g.cfg.OutputDir, Err: err}
	}

	results := make(map[string]catalog.FunctionRecord, len(entries))
	var resultsMu sync.Mutex

	process := func(ctx context.Context, path string) error {
		rec, err := g.ProcessFile(ctx, path)
		if err != nil {
			if g.cfg.ContinueOnError && isolatable(err) {
				g.log("Skipping %s: %v", path, err)
				g.mu.Lock()
				g.skipped = append(g.skipped, path)
				g.mu.Unlock()
				return nil
			}
			return err
		}
		resultsMu.Lock()
		results[path] = rec
		resultsMu.Unlock()
		return nil
	}

	if g.cfg.Workers == 1 {
		for _, path := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := process(ctx, path); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	// Entry points sharing an output file stay on one worker, in walk
	// order, so the last one wins exactly as in a sequential run.
	groups := groupByOutput(entries)
	if g.cfg.Verbose && len(groups) < len(entries) {
		g.log("%d entry points share an output file with another entry point", len(entries)-len(groups))
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for _, group := range groups {
		group := group
		eg.Go(func() error {
			for _, path := range group {
				if err := egCtx.Err(); err != nil {
					return err
				}
				if err := process(egCtx, path); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// groupByOutput partitions entry points by output file name, keeping walk
// order within each group and ordering groups by first appearance.
func groupByOutput(entries []string) [][]string {
	index := make(map[string]int, len(entries))
	var groups [][]string
	for _, path := range entries {
		name := OutputFileName(path)
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], path)
	}
	return groups
}

// ProcessFile extracts, renders and writes the call tree of one entry point.
func (g *Generator) ProcessFile(ctx context.Context, path string) (catalog.FunctionRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return catalog.FunctionRecord{}, &DiscoveryError{Path: path, Err: err}
	}

	obs, err := ExtractObservations(ctx, path, content, g.cfg.Catalog, g.cfg.Trigger)
	if err != nil {
		return catalog.FunctionRecord{}, err
	}
	if g.cfg.Verbose {
		g.log("  %s: %d calls -> %s", path, len(obs), OutputFileName(path))
	}

	return WriteHarness(path, obs, g.cfg.Catalog, WriteOptions{
		OutputDir: g.cfg.OutputDir,
		Trigger:   g.cfg.Trigger,
		MaxDepth:  g.cfg.MaxDepth,
	})
}

func (g *Generator) checkCargoTargets(root string, entries []string) {
	declared, err := CargoTargets(root)
	if err != nil {
		g.log("Cargo manifest check skipped: %v", err)
		return
	}
	if len(declared) == 0 {
		return
	}
	for _, path := range UndeclaredEntryPoints(entries, declared) {
		g.log("  %s is not declared as a cargo-fuzz target", path)
	}
}

// isolatable reports whether err concerns a single entry point.
func isolatable(err error) bool {
	var pe *ParseError
	var we *WriteError
	return errors.As(err, &pe) || errors.As(err, &we)
}
