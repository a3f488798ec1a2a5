package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultmirror/internal/config"
	"github.com/systmms/vaultmirror/internal/state"
)

func NewHistoryCommand(cfg *config.Config) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync passes",
		Long:  `List recent reconciliation passes with their outcome and counts, newest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(context.Background(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println("No sync passes recorded yet. Run 'vaultmirror sync' first.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSTATUS\tDURATION\tCREATED\tUPDATED\tSKIPPED\tDELETED\tFAILED\tERROR")
			for _, run := range runs {
				duration := "-"
				if !run.CompletedAt.IsZero() {
					duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					runIcon(run.Status), duration,
					run.Created, run.Updated, run.Skipped, run.Deleted, run.Failed,
					run.Error)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of passes to show")

	return cmd
}

func runIcon(status state.RunStatus) string {
	switch status {
	case state.RunSuccess:
		return "✅ success"
	case state.RunFailed:
		return "❌ failed"
	case state.RunInProgress:
		return "⏳ in progress"
	default:
		return string(status)
	}
}
