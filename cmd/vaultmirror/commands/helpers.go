package commands

import (
	"fmt"
	"path/filepath"

	"github.com/systmms/vaultmirror/internal/cluster"
	"github.com/systmms/vaultmirror/internal/config"
	"github.com/systmms/vaultmirror/internal/coordinator"
	vmerrors "github.com/systmms/vaultmirror/internal/errors"
	"github.com/systmms/vaultmirror/internal/reconcile"
	"github.com/systmms/vaultmirror/internal/state"
	"github.com/systmms/vaultmirror/internal/vault"
)

// openStore creates the configured state store. The caller owns Close.
func openStore(cfg *config.Config) (state.Store, error) {
	switch cfg.Definition.StateStore.Type {
	case "postgres":
		return state.NewPostgresStore(cfg.Definition.StateStore.DSN)
	case "file", "":
		dir := cfg.Definition.StateStore.Path
		if dir == "" {
			dir = state.DefaultStateDir()
		}
		return state.NewFileStore(dir), nil
	default:
		return nil, vmerrors.ConfigError{
			Field:      "state_store.type",
			Value:      cfg.Definition.StateStore.Type,
			Message:    "unknown state store type",
			Suggestion: "Use 'file' or 'postgres'",
		}
	}
}

// newSource creates the configured vault item source.
func newSource(cfg *config.Config) (vault.ItemSource, error) {
	switch cfg.Definition.Source.Type {
	case "bitwarden", "":
		return vault.NewBitwardenSource(vault.NewSessionCache()), nil
	case "static":
		return nil, vmerrors.ConfigError{
			Field:      "source.type",
			Value:      "static",
			Message:    "the static source is only available in tests",
			Suggestion: "Use 'bitwarden'",
		}
	default:
		return nil, vmerrors.ConfigError{
			Field:      "source.type",
			Value:      cfg.Definition.Source.Type,
			Message:    "unknown source type",
			Suggestion: "Use 'bitwarden'",
		}
	}
}

// newGateways creates one gateway per configured cluster.
func newGateways(cfg *config.Config) ([]cluster.Gateway, error) {
	gateways := make([]cluster.Gateway, 0, len(cfg.Definition.Clusters))
	for _, c := range cfg.Definition.Clusters {
		gw, err := cluster.NewKubernetesGateway(c.Name, c.Kubeconfig, c.Context)
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gw)
	}
	return gateways, nil
}

// buildCoordinator assembles the full pipeline from loaded configuration.
// The returned store must be closed by the caller.
func buildCoordinator(cfg *config.Config, rec reconcile.Options) (*coordinator.Coordinator, state.Store, error) {
	source, err := newSource(cfg)
	if err != nil {
		return nil, nil, err
	}

	gateways, err := newGateways(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	if rec.Workers == 0 {
		rec.Workers = cfg.Definition.Sync.Workers
	}

	coord := coordinator.New(source, gateways, store, cfg.Logger, coordinator.Options{
		NotePrefix: cfg.Definition.Source.NotePrefix,
		Reconcile:  rec,
		LockPath:   lockPath(cfg),
	})
	return coord, store, nil
}

func lockPath(cfg *config.Config) string {
	if cfg.Definition.StateStore.Type == "postgres" {
		// Postgres stores share state across hosts; a local lock file would
		// only guard one of them. Exclusivity comes from the run gate.
		return ""
	}
	dir := cfg.Definition.StateStore.Path
	if dir == "" {
		dir = state.DefaultStateDir()
	}
	return filepath.Join(dir, "vaultmirror.lock")
}

// loadConfig loads the configuration file, shared by every command that needs
// it.
func loadConfig(cfg *config.Config) error {
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}
