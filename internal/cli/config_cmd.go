package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the configuration after defaults, .calltree.yaml and CALLTREE_*
environment overrides are applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out)
			fmt.Fprintln(out, headerStyle.Render("calltree Configuration"))
			fmt.Fprintln(out, headerStyle.Render(strings.Repeat("=", 22)))
			fmt.Fprintln(out)

			printSection(out, "Paths")
			printKV(out, "Source dir", orNone(cfg.SourceDir))
			printKV(out, "Output dir", cfg.OutputDir)
			fmt.Fprintln(out)

			printSection(out, "Catalog")
			printKV(out, "File", orNone(cfg.Catalog.Path))
			printKV(out, "Store", cfg.Catalog.DBPath)
			printKV(out, "Scan sources", boolYesNo(cfg.Catalog.Scan))
			fmt.Fprintln(out)

			printSection(out, "Harness")
			printKV(out, "Trigger", cfg.Harness.Trigger+"!")
			printKV(out, "Extension", cfg.Harness.Extension)
			printKV(out, "Structural", boolYesNo(cfg.Harness.Structural))
			fmt.Fprintln(out)

			printSection(out, "Run")
			depth := "unlimited"
			if cfg.Render.MaxDepth > 0 {
				depth = strconv.Itoa(cfg.Render.MaxDepth)
			}
			printKV(out, "Max depth", depth)
			printKV(out, "Workers", strconv.Itoa(cfg.Run.Workers))
			printKV(out, "Continue on error", boolYesNo(cfg.Run.ContinueOnError))
			fmt.Fprintln(out)

			printSection(out, "Watch Exclusions")
			for _, pattern := range cfg.Watch.Exclude {
				fmt.Fprintf(out, "    %s\n", pattern)
			}
			fmt.Fprintln(out)

			return nil
		},
	}
}
