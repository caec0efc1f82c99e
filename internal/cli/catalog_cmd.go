package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fuzzlens/calltree/internal/catalog"
	"github.com/fuzzlens/calltree/internal/indexer"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the persistent function catalog",
		Long: `Manage the function catalog stored at catalog.db_path.

Subcommands:
  import    Append records from a JSON or YAML catalog file
  scan      Parse Rust sources into catalog records`,
	}

	cmd.PersistentFlags().String("db-path", "", "catalog store directory (default from config)")
	cmd.PersistentFlags().Bool("reset", false, "clear the store before adding records")

	cmd.AddCommand(newCatalogImportCmd())
	cmd.AddCommand(newCatalogScanCmd())

	return cmd
}

// catalogStorePath resolves --db-path against the configured store path.
func catalogStorePath(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return "", err
	}
	if cmd.Flags().Changed("db-path") {
		return cmd.Flags().GetString("db-path")
	}
	return cfg.Catalog.DBPath, nil
}

func newCatalogImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Append records from a JSON or YAML catalog file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := catalogStorePath(cmd)
			if err != nil {
				return err
			}
			records, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}

			s, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			if reset, _ := cmd.Flags().GetBool("reset"); reset {
				if err := s.Reset(); err != nil {
					return fmt.Errorf("reset store: %w", err)
				}
			}
			if err := s.PutRecords(records); err != nil {
				return fmt.Errorf("store records: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %s into %s\n", len(records), args[0], dbPath)
			return nil
		},
	}
}

func newCatalogScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <dir>",
		Short: "Parse Rust sources under dir into catalog records",
		Long: `Parse every .rs file under dir with tree-sitter and store one record per
function or method. Records of a file that was scanned before are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			dbPath, err := catalogStorePath(cmd)
			if err != nil {
				return err
			}

			s, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			if reset, _ := cmd.Flags().GetBool("reset"); reset {
				if err := s.Reset(); err != nil {
					return fmt.Errorf("reset store: %w", err)
				}
			}

			idx, err := indexer.NewIndexer(indexer.IndexerConfig{
				Store:     s,
				ScanPaths: args,
				Exclude:   cfg.Watch.Exclude,
				Verbose:   verbose,
				Logger:    cmdLogger(cmd),
			})
			if err != nil {
				return err
			}
			if err := idx.IndexDirectory(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("scan %s: %w", args[0], err)
			}

			stats := idx.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned %d files into %s\n", stats.FilesIndexed, dbPath)
			if len(stats.Errors) > 0 {
				fmt.Fprintf(out, "%d files failed:\n", len(stats.Errors))
				for _, e := range stats.Errors {
					fmt.Fprintf(out, "  %s\n", e)
				}
			}
			return nil
		},
	}
}
