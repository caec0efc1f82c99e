package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fuzzlens/calltree/internal/catalog"
	"github.com/fuzzlens/calltree/internal/catalog/store"
	"github.com/fuzzlens/calltree/internal/harness"
)

func newGenerateCmd() *cobra.Command {
	var (
		flags       runFlags
		useStore    bool
		emitRecords string
	)

	cmd := &cobra.Command{
		Use:   "generate [dir]",
		Short: "Write call trees for every fuzz target under dir",
		Long: `Discover fuzz entry points under dir (default: source_dir or "."),
extract the calls inside each fuzz_target! body and write one
fuzzerLogFile-<name>.data call tree per entry point.

The catalog is layered from the store (--store), the catalog file
(--catalog) and a source scan (--scan); later sources win.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			root := sourceRoot(cfg, args)
			ctx := cmd.Context()
			log := cmdLogger(cmd)

			var s *store.Store
			if useStore {
				s, err = openStore(cfg.Catalog.DBPath)
				if err != nil {
					return err
				}
				defer s.Close()
			}

			cat, err := buildCatalog(ctx, cfg, root, s)
			if err != nil {
				return err
			}
			if verbose {
				log("Catalog: %d functions", cat.Len())
			}

			gen := harness.NewGenerator(harness.GeneratorConfig{
				Catalog:         cat,
				Trigger:         cfg.Harness.Trigger,
				Extension:       cfg.Harness.Extension,
				Structural:      cfg.Harness.Structural,
				OutputDir:       cfg.OutputDir,
				MaxDepth:        cfg.Render.MaxDepth,
				Workers:         cfg.Run.Workers,
				ContinueOnError: cfg.Run.ContinueOnError,
				Verbose:         verbose,
				Logger:          log,
			})
			results, err := gen.Run(ctx, root)
			if err != nil {
				return err
			}

			if s != nil {
				if err := s.PutHarnessRecords(results); err != nil {
					return fmt.Errorf("store harness records: %w", err)
				}
			}
			if emitRecords != "" {
				if err := catalog.WriteHarnessFile(emitRecords, results); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %d call trees in %s\n", len(results), cfg.OutputDir)
			if skipped := gen.Skipped(); len(skipped) > 0 {
				fmt.Fprintf(out, "Skipped %d entry points:\n", len(skipped))
				for _, p := range skipped {
					fmt.Fprintf(out, "  %s\n", p)
				}
			}
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&useStore, "store", false, "layer the catalog store under the catalog and save harness records to it")
	cmd.Flags().StringVar(&emitRecords, "emit-records", "", "write synthesized harness records as JSON to this file")

	return cmd
}
