package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultmirror/internal/config"
	"github.com/systmms/vaultmirror/internal/reconcile"
	"github.com/systmms/vaultmirror/internal/state"
)

func NewCleanupCommand(cfg *config.Config) *cobra.Command {
	var (
		namespace string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete orphaned Secrets this tool owns",
		Long: `Remove Secrets that carry this tool's ownership label but are no longer
claimed by any vault item.

Only Secrets created by vaultmirror are ever considered; Secrets without
the ownership label are never touched.

Examples:
  vaultmirror cleanup              # Delete orphans in every cluster
  vaultmirror cleanup --dry-run    # List orphans without deleting`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}

			coord, store, err := buildCoordinator(cfg, reconcile.Options{
				Namespace:     namespace,
				OrphanCleanup: true,
				CleanupOnly:   true,
				DryRun:        dryRun,
			})
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := coord.RecoverInterruptedRuns(ctx); err != nil {
				return err
			}

			summary, err := coord.RunOnce(ctx)
			if err != nil {
				return err
			}
			printSummary(cfg, summary, dryRun)
			if summary.Status == state.RunFailed {
				return fmt.Errorf("cleanup completed with %d failed target(s)", summary.Counts.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Restrict cleanup to one namespace")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List orphans without deleting")

	return cmd
}
