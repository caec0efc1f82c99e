package cli

import (
	"context"
	"fmt"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/fuzzlens/calltree/internal/harness"
	"github.com/fuzzlens/calltree/internal/indexer"
)

func newWatchCmd() *cobra.Command {
	var (
		flags       runFlags
		scanPaths   []string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Regenerate call trees as harnesses and sources change",
		Long: `Generate call trees once, then watch dir and the scan paths and
regenerate after every burst of changes. Rust files under a scan path are
re-parsed into the catalog store first, so edits to library code show up
in the trees.

Without --scan-path, the project root is scanned when catalog.scan is set.
With --metrics-addr, Prometheus metrics are served on /metrics.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			root := sourceRoot(cfg, args)
			if len(scanPaths) == 0 && cfg.Catalog.Scan {
				scanPaths = []string{root}
			}

			s, err := openStore(cfg.Catalog.DBPath)
			if err != nil {
				return err
			}
			defer s.Close()

			log := cmdLogger(cmd)

			var metrics *indexer.Metrics
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				metrics = indexer.NewMetrics(reg)
				srv := serveMetrics(metricsAddr, reg, log)
				defer func() {
					shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutCtx)
				}()
			}

			idx, err := indexer.NewIndexer(indexer.IndexerConfig{
				Store:     s,
				Root:      root,
				ScanPaths: scanPaths,
				Generator: harness.GeneratorConfig{
					Trigger:         cfg.Harness.Trigger,
					Extension:       cfg.Harness.Extension,
					Structural:      cfg.Harness.Structural,
					OutputDir:       cfg.OutputDir,
					MaxDepth:        cfg.Render.MaxDepth,
					Workers:         cfg.Run.Workers,
					ContinueOnError: cfg.Run.ContinueOnError,
				},
				Exclude: cfg.Watch.Exclude,
				Metrics: metrics,
				Verbose: verbose,
				Logger:  log,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down...")
					cancel()
				case <-ctx.Done():
				}
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s\n", root)
			for _, p := range scanPaths {
				fmt.Fprintf(out, "  scanning %s\n", p)
			}
			fmt.Fprintf(out, "Catalog store: %s\n", cfg.Catalog.DBPath)
			fmt.Fprintf(out, "Output: %s\n", cfg.OutputDir)
			if metricsAddr != "" {
				fmt.Fprintf(out, "Metrics: http://%s/metrics\n", metricsAddr)
			}

			if err := idx.Start(ctx); err != nil {
				return fmt.Errorf("watch: %w", err)
			}

			stats := idx.Stats()
			fmt.Fprintf(out, "\nFinal stats:\n")
			fmt.Fprintf(out, "  Files indexed: %d\n", stats.FilesIndexed)
			fmt.Fprintf(out, "  Generations:   %d\n", stats.Generations)
			fmt.Fprintf(out, "  Harnesses:     %d\n", stats.Harnesses)
			if len(stats.Errors) > 0 {
				fmt.Fprintf(out, "  Errors:        %d\n", len(stats.Errors))
			}
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringSliceVar(&scanPaths, "scan-path", nil, "source trees re-parsed into the catalog on change")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")

	return cmd
}

func serveMetrics(addr string, reg *prometheus.Registry, log func(string, ...any)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log("metrics server: %v", err)
		}
	}()
	return srv
}
