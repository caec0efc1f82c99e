package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show catalog store contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("db-path") {
				dbPath = cfg.Catalog.DBPath
			}

			s, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.Stats()
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			harnesses, err := s.Harnesses()
			if err != nil {
				return fmt.Errorf("read harness records: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render("Catalog Status"))
			fmt.Fprintln(out, headerStyle.Render(strings.Repeat("=", 14)))
			fmt.Fprintln(out)

			printSection(out, "Store")
			printKV(out, "Path", dbPath)
			printKV(out, "Records", strconv.FormatInt(stats.Records, 10))
			printKV(out, "Distinct names", strconv.FormatInt(stats.Names, 10))
			printKV(out, "Call edges", strconv.FormatInt(stats.Edges, 10))
			if dup := stats.Records - stats.Names; dup > 0 {
				fmt.Fprintf(out, "    %s\n", warnStyle.Render(fmt.Sprintf("%d records shadowed by later definitions", dup)))
			}
			fmt.Fprintln(out)

			printSection(out, fmt.Sprintf("Harnesses (%d)", stats.Harnesses))
			paths := make([]string, 0, len(harnesses))
			for p := range harnesses {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			for _, p := range paths {
				printKV(out, p, fmt.Sprintf("%d calls", len(harnesses[p].CalledFunctions)))
			}
			if len(paths) == 0 {
				fmt.Fprintln(out, "    (none; run 'calltree generate --store')")
			}
			fmt.Fprintln(out)

			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db-path", "", "catalog store directory (default from config)")

	return cmd
}
