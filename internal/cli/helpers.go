package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fuzzlens/calltree/internal/catalog"
	"github.com/fuzzlens/calltree/internal/catalog/store"
	"github.com/fuzzlens/calltree/internal/config"
	"github.com/fuzzlens/calltree/internal/rustscan"
)

// runFlags are the per-run overrides shared by generate and watch. Only
// flags the user actually set replace configured values.
type runFlags struct {
	catalogPath     string
	dbPath          string
	outputDir       string
	trigger         string
	maxDepth        int
	workers         int
	scan            bool
	structural      bool
	continueOnError bool
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.catalogPath, "catalog", "", "function catalog file (JSON or YAML)")
	fs.StringVar(&f.dbPath, "db-path", "", "catalog store directory (default from config)")
	fs.StringVarP(&f.outputDir, "output", "o", "", "directory for fuzzerLogFile-*.data files")
	fs.StringVar(&f.trigger, "trigger", "", "macro marking a fuzz entry point")
	fs.IntVar(&f.maxDepth, "max-depth", 0, "maximum call tree depth (0 = unlimited)")
	fs.IntVarP(&f.workers, "workers", "j", 1, "entry points processed in parallel")
	fs.BoolVar(&f.scan, "scan", false, "build the catalog by parsing the project's Rust sources")
	fs.BoolVar(&f.structural, "structural", false, "require a real macro invocation when discovering entry points")
	fs.BoolVar(&f.continueOnError, "continue-on-error", false, "skip entry points that fail to parse or write")
}

func (f *runFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("catalog") {
		cfg.Catalog.Path = f.catalogPath
	}
	if fs.Changed("db-path") {
		cfg.Catalog.DBPath = f.dbPath
	}
	if fs.Changed("output") {
		cfg.OutputDir = f.outputDir
	}
	if fs.Changed("trigger") {
		cfg.Harness.Trigger = f.trigger
	}
	if fs.Changed("max-depth") {
		cfg.Render.MaxDepth = f.maxDepth
	}
	if fs.Changed("workers") {
		cfg.Run.Workers = f.workers
	}
	if fs.Changed("scan") {
		cfg.Catalog.Scan = f.scan
	}
	if fs.Changed("structural") {
		cfg.Harness.Structural = f.structural
	}
	if fs.Changed("continue-on-error") {
		cfg.Run.ContinueOnError = f.continueOnError
	}
}

// loadConfig loads and validates configuration after applying overrides.
func loadConfig(cmd *cobra.Command, f *runFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if f != nil {
		f.apply(cmd.Flags(), cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// sourceRoot picks the project root from args, then config, then ".".
func sourceRoot(cfg *config.Config, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if cfg.SourceDir != "" {
		return cfg.SourceDir
	}
	return "."
}

// openStore opens the catalog store, creating its parent directory.
func openStore(dbPath string) (*store.Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("no catalog store path; set catalog.db_path or use --db-path")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog store: %w", err)
	}
	return s, nil
}

// buildCatalog assembles the catalog for one run. Sources are layered in
// order (store, catalog file, source scan) so later definitions win, and
// stored harness records are merged last.
func buildCatalog(ctx context.Context, cfg *config.Config, root string, s *store.Store) (*catalog.Catalog, error) {
	var records []catalog.FunctionRecord
	if s != nil {
		stored, err := s.Records()
		if err != nil {
			return nil, fmt.Errorf("read catalog store: %w", err)
		}
		records = append(records, stored...)
	}
	if cfg.Catalog.Path != "" {
		loaded, err := catalog.LoadFile(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		records = append(records, loaded...)
	}
	if cfg.Catalog.Scan {
		scanned, err := rustscan.ScanDir(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
		records = append(records, scanned...)
	}

	cat := catalog.New(records)
	if s != nil {
		harnesses, err := s.Harnesses()
		if err != nil {
			return nil, fmt.Errorf("read harness records: %w", err)
		}
		cat = cat.Merge(harnesses)
	}
	return cat, nil
}

// cmdLogger writes log lines to the command's stderr.
func cmdLogger(cmd *cobra.Command) func(format string, args ...any) {
	return func(format string, args ...any) {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	}
}
