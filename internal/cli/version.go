package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/fuzzlens/calltree/internal/harness"
)

// Version information (set by ldflags during build).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			commit, built := Commit, BuildDate
			if info, ok := debug.ReadBuildInfo(); ok {
				for _, s := range info.Settings {
					switch {
					case s.Key == "vcs.revision" && commit == "unknown":
						commit = s.Value
					case s.Key == "vcs.time" && built == "unknown":
						built = s.Value
					}
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "calltree %s (%s, built %s)\n", Version, commit, built)
			fmt.Fprintf(out, "  %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "  default trigger: %s!  extension: %s\n", harness.DefaultTrigger, harness.DefaultExtension)
		},
	}
}
