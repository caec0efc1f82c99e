package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/fuzzlens/calltree/internal/config"
)

// runInteractiveInit runs the interactive TUI wizard for project setup.
func runInteractiveInit(cmd *cobra.Command, cwd, configPath string) error {
	out := cmd.OutOrStdout()

	cfg := defaultProjectConfig(cwd)
	_, targets := detectFuzzDir(cwd)

	var (
		sourceDir       = cfg.SourceDir
		outputDir       = cfg.OutputDir
		trigger         = cfg.Harness.Trigger
		catalogSource   = "store"
		catalogPath     string
		workers         = "1"
		continueOnError bool
		confirm         bool
	)

	catalogOptions := []huh.Option[string]{
		huh.NewOption("Catalog store only (import or scan later)", "store"),
		huh.NewOption("Catalog file from static analysis", "file"),
		huh.NewOption("Scan Rust sources on every run", "scan"),
	}
	workerOptions := []huh.Option[string]{
		huh.NewOption("1 (sequential)", "1"),
		huh.NewOption("2", "2"),
		huh.NewOption("4", "4"),
		huh.NewOption("8", "8"),
	}

	notEmpty := func(what string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s cannot be empty", what)
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Detected fuzz targets").
				Description(fmt.Sprintf("%d cargo-fuzz targets declared under %s", len(targets), cwd)),
			huh.NewInput().
				Title("Source directory").
				Description("Searched for fuzz entry points; empty means the current directory").
				Value(&sourceDir),
			huh.NewInput().
				Title("Output directory").
				Value(&outputDir).
				Validate(notEmpty("output directory")),
			huh.NewInput().
				Title("Entry point macro").
				Value(&trigger).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" || strings.Contains(s, "!") {
						return fmt.Errorf("enter the bare macro name, e.g. fuzz_target")
					}
					return nil
				}),
		).Title("Project Setup"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Function catalog").
				Options(catalogOptions...).
				Value(&catalogSource),
		).Title("Catalog"),

		huh.NewGroup(
			huh.NewInput().
				Title("Catalog file").
				Placeholder("functions.json").
				Value(&catalogPath).
				Validate(notEmpty("catalog file")),
		).Title("Catalog File").
			WithHideFunc(func() bool { return catalogSource != "file" }),

		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Parallel workers").
				Options(workerOptions...).
				Value(&workers),
			huh.NewConfirm().
				Title("Continue when one entry point fails?").
				Description("Parse and write failures are logged and skipped").
				Value(&continueOnError).
				Affirmative("Yes").
				Negative("No"),
		).Title("Run Options"),

		huh.NewGroup(
			huh.NewNote().
				Title("Summary").
				DescriptionFunc(func() string {
					catalogLabel := catalogSource
					if catalogSource == "file" {
						catalogLabel = "file " + catalogPath
					}
					return fmt.Sprintf(
						"Source:      %s\n"+
							"Output:      %s\n"+
							"Trigger:     %s!\n"+
							"Catalog:     %s\n"+
							"Workers:     %s\n"+
							"Continue:    %v",
						orNone(sourceDir), outputDir, trigger,
						catalogLabel, workers, continueOnError,
					)
				}, &catalogSource),
			huh.NewConfirm().
				Title("Write " + configPath + "?").
				Value(&confirm).
				Affirmative("Write").
				Negative("Cancel"),
		).Title("Confirm"),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
		return fmt.Errorf("interactive init: %w", err)
	}
	if !confirm {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}

	cfg.SourceDir = strings.TrimSpace(sourceDir)
	cfg.OutputDir = strings.TrimSpace(outputDir)
	cfg.Harness.Trigger = strings.TrimSpace(trigger)
	switch catalogSource {
	case "file":
		cfg.Catalog.Path = strings.TrimSpace(catalogPath)
	case "scan":
		cfg.Catalog.Scan = true
	}
	if n, err := strconv.Atoi(workers); err == nil {
		cfg.Run.Workers = n
	}
	cfg.Run.ContinueOnError = continueOnError

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.WriteConfig(cfg, configPath); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	fmt.Fprintf(out, "Created %s\n", configPath)
	printNextSteps(cmd, cfg)
	return nil
}
