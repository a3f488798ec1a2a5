package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultmirror/internal/config"
	vmerrors "github.com/systmms/vaultmirror/internal/errors"
)

// CheckResult is the outcome of one doctor check.
type CheckResult struct {
	Name       string
	Status     string
	Message    string
	Suggestion string
}

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check source, cluster and state store connectivity",
		Long: `Verify that everything a sync pass needs is reachable.

This command checks:
- Configuration file validity
- Vault source authentication
- Connectivity to every configured cluster
- The state store backend`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Logger.Info("Checking vaultmirror configuration...")
			if err := loadConfig(cfg); err != nil {
				cfg.Logger.Error("Configuration error: %v", err)
				return err
			}
			cfg.Logger.Info("✓ Configuration loaded successfully")

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			results := []CheckResult{}
			results = append(results, checkSource(ctx, cfg))
			results = append(results, checkClusters(ctx, cfg)...)
			results = append(results, checkStore(ctx, cfg))

			printChecks(results)

			for _, r := range results {
				if r.Status == "error" {
					return fmt.Errorf("%d check(s) failed", countErrors(results))
				}
			}
			cfg.Logger.Info("All checks passed")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall check timeout")

	return cmd
}

func checkSource(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{Name: "source/" + cfg.Definition.Source.Type}

	source, err := newSource(cfg)
	if err != nil {
		result.Status = "error"
		result.Message = err.Error()
		return result
	}

	if err := source.Validate(ctx); err != nil {
		result.Status = "error"
		result.Message = err.Error()
		if ue, ok := vmerrors.SimplifyError(err).(vmerrors.UserError); ok {
			result.Suggestion = ue.Suggestion
		}
		return result
	}

	result.Status = "healthy"
	result.Message = "Vault source is ready"
	return result
}

func checkClusters(ctx context.Context, cfg *config.Config) []CheckResult {
	results := make([]CheckResult, 0, len(cfg.Definition.Clusters))
	gateways, err := newGateways(cfg)
	if err != nil {
		return append(results, CheckResult{
			Name:    "clusters",
			Status:  "error",
			Message: err.Error(),
		})
	}

	for _, gw := range gateways {
		result := CheckResult{Name: "cluster/" + gw.Name()}
		namespaces, err := gw.ListNamespaces(ctx)
		if err != nil {
			result.Status = "error"
			result.Message = err.Error()
			result.Suggestion = "Check the kubeconfig path, context and credentials for this cluster"
		} else {
			result.Status = "healthy"
			result.Message = fmt.Sprintf("Reachable, %d namespace(s)", len(namespaces))
		}
		results = append(results, result)
	}
	return results
}

func checkStore(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{Name: "state/" + cfg.Definition.StateStore.Type}

	store, err := openStore(cfg)
	if err != nil {
		result.Status = "error"
		result.Message = err.Error()
		return result
	}
	defer store.Close()

	if _, err := store.ListRuns(ctx, 1); err != nil {
		result.Status = "error"
		result.Message = err.Error()
		result.Suggestion = "Check the state store path or connection string"
		return result
	}

	result.Status = "healthy"
	result.Message = "State store is ready"
	return result
}

func printChecks(results []CheckResult) {
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tDETAILS")
	for _, r := range results {
		icon := "✅"
		if r.Status == "error" {
			icon = "❌"
		}
		fmt.Fprintf(w, "%s\t%s %s\t%s\n", r.Name, icon, r.Status, r.Message)
	}
	w.Flush()

	for _, r := range results {
		if r.Suggestion != "" {
			fmt.Printf("\n💡 %s: %s\n", r.Name, r.Suggestion)
		}
	}
	fmt.Println()
}

func countErrors(results []CheckResult) int {
	n := 0
	for _, r := range results {
		if r.Status == "error" {
			n++
		}
	}
	return n
}
