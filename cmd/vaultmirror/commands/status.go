package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultmirror/internal/config"
	"github.com/systmms/vaultmirror/internal/state"
)

func NewStatusCommand(cfg *config.Config) *cobra.Command {
	var clusterName string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync state of every managed Secret",
		Long: `List the last known state of each Secret this tool manages: its content
hash, status, contributing vault items, and the last error if any.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cfg); err != nil {
				return err
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			clusters := make([]string, 0, len(cfg.Definition.Clusters))
			if clusterName != "" {
				clusters = append(clusters, clusterName)
			} else {
				for _, c := range cfg.Definition.Clusters {
					clusters = append(clusters, c.Name)
				}
			}

			ctx := context.Background()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CLUSTER\tNAMESPACE\tNAME\tSTATUS\tLAST SYNCED\tERROR")

			total := 0
			for _, cl := range clusters {
				records, err := store.ListSyncRecords(ctx, cl)
				if err != nil {
					return fmt.Errorf("failed to list sync records for %s: %w", cl, err)
				}
				for _, rec := range records {
					last := "never"
					if !rec.LastSynced.IsZero() {
						last = rec.LastSynced.Local().Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						rec.Cluster, rec.Namespace, rec.Name, statusIcon(rec.Status), last, rec.LastError)
					total++
				}
			}
			w.Flush()

			if total == 0 {
				fmt.Println("No synced secrets yet. Run 'vaultmirror sync' first.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&clusterName, "cluster", "", "Show only one cluster")

	return cmd
}

func statusIcon(status state.SyncStatus) string {
	switch status {
	case state.StatusActive:
		return "✅ active"
	case state.StatusFailed:
		return "❌ failed"
	case state.StatusDeleted:
		return "🗑️ deleted"
	default:
		return string(status)
	}
}
