package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultmirror/internal/config"
	"github.com/systmms/vaultmirror/internal/coordinator"
	"github.com/systmms/vaultmirror/internal/metrics"
	"github.com/systmms/vaultmirror/internal/reconcile"
	"github.com/systmms/vaultmirror/internal/state"
)

func NewSyncCommand(cfg *config.Config) *cobra.Command {
	var (
		namespace  string
		continuous bool
		interval   time.Duration
		dryRun      bool
		workers     int
		metricsPort int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile vault items into cluster Secrets",
		Long: `Read items from the vault, parse their sync directives, and reconcile
the resulting Secrets into every configured cluster.

Each pass creates missing Secrets, updates changed ones, skips unchanged
ones, and reports Secrets this tool owns that no vault item claims anymore.
Orphaned Secrets are only deleted when sync.orphan_cleanup is enabled or
via the cleanup command.

Examples:
  vaultmirror sync                          # One pass over all namespaces
  vaultmirror sync --namespace staging      # Restrict to one namespace
  vaultmirror sync --dry-run                # Show decisions without writing
  vaultmirror sync --continuous             # Keep syncing on the configured interval`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}

			metrics.InitMetrics()

			coord, store, err := buildCoordinator(cfg, reconcile.Options{
				Workers:       workers,
				Namespace:     namespace,
				OrphanCleanup: cfg.Definition.Sync.OrphanCleanup,
				DryRun:        dryRun,
			})
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if continuous {
				if interval == 0 {
					interval, err = cfg.Definition.SyncInterval()
					if err != nil {
						return err
					}
				}

				if metricsPort > 0 {
					serverConfig := metrics.DefaultServerConfig()
					serverConfig.Enabled = true
					serverConfig.Port = metricsPort
					server := metrics.NewServer(serverConfig)
					if err := server.Start(); err != nil {
						return err
					}
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						server.Stop(shutdownCtx)
					}()
					cfg.Logger.Info("Serving metrics on :%d/metrics", metricsPort)
				}

				err := coord.RunContinuous(ctx, interval)
				if errors.Is(err, context.Canceled) {
					cfg.Logger.Info("Shutting down")
					return nil
				}
				return err
			}

			if err := coord.RecoverInterruptedRuns(ctx); err != nil {
				return err
			}

			summary, err := coord.RunOnce(ctx)
			if err != nil {
				return err
			}
			printSummary(cfg, summary, dryRun)
			if summary.Status == state.RunFailed {
				return fmt.Errorf("sync completed with %d failed target(s)", summary.Counts.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Restrict the pass to one namespace")
	cmd.Flags().BoolVar(&continuous, "continuous", false, "Keep syncing on an interval until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Override the configured sync interval")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without writing")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent secret writes per cluster")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port (continuous mode only)")

	return cmd
}

func printSummary(cfg *config.Config, summary *coordinator.Summary, dryRun bool) {
	prefix := ""
	if dryRun {
		prefix = "[dry-run] "
	}
	c := summary.Counts
	cfg.Logger.Info("%sSync %s in %s: %d created, %d updated, %d skipped, %d deleted, %d failed, %d orphaned kept",
		prefix, summary.Status, summary.Duration.Round(time.Millisecond),
		c.Created, c.Updated, c.Skipped, c.Deleted, c.Failed, c.OrphanedKept)
	for _, err := range summary.Errors {
		cfg.Logger.Error("%v", err)
	}
}
