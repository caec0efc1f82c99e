package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fuzzlens/calltree/internal/config"
	"github.com/fuzzlens/calltree/internal/harness"
)

func newInitCmd() *cobra.Command {
	var (
		interactive bool
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a .calltree.yaml config file",
		Long: `Create .calltree.yaml in the current directory.

A cargo-fuzz project in ./fuzz is detected and used as the source
directory. Use --interactive for a guided setup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}

			configPath := filepath.Join(cwd, config.DefaultConfigFile+"."+config.DefaultConfigType)
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", configPath)
			}

			if interactive {
				return runInteractiveInit(cmd, cwd, configPath)
			}

			cfg := defaultProjectConfig(cwd)
			if err := config.WriteConfig(cfg, configPath); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s\n", configPath)
			printNextSteps(cmd, cfg)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "run the interactive setup")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}

// detectFuzzDir returns the conventional cargo-fuzz directory when present,
// relative to cwd, and the targets its manifests declare.
func detectFuzzDir(cwd string) (string, []string) {
	targets, _ := harness.CargoTargets(cwd)
	if _, err := os.Stat(filepath.Join(cwd, "fuzz", "Cargo.toml")); err == nil {
		return "fuzz", targets
	}
	return "", targets
}

func defaultProjectConfig(cwd string) *config.Config {
	sourceDir, _ := detectFuzzDir(cwd)
	return &config.Config{
		SourceDir: sourceDir,
		OutputDir: ".",
		Catalog: config.CatalogConfig{
			DBPath: filepath.Join(".calltree", "catalog.db"),
		},
		Harness: config.HarnessConfig{
			Trigger:   harness.DefaultTrigger,
			Extension: harness.DefaultExtension,
		},
		Run: config.RunConfig{Workers: 1},
		Watch: config.WatchConfig{
			Exclude: []string{
				"**/target/**",
				"**/.git/**",
				"**/corpus/**",
				"**/artifacts/**",
			},
		},
	}
}

func printNextSteps(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	if cfg.Catalog.Path == "" && !cfg.Catalog.Scan {
		fmt.Fprintln(out, "  1. Import a function catalog: calltree catalog import <file>")
		fmt.Fprintln(out, "     or scan sources:           calltree catalog scan <src>")
	} else {
		fmt.Fprintln(out, "  1. Review .calltree.yaml")
	}
	fmt.Fprintln(out, "  2. Add .calltree/ to .gitignore")
	fmt.Fprintln(out, "  3. Run 'calltree generate --store' to write the call trees")
}
