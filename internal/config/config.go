// Package config loads and validates the vaultmirror configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	vmerrors "github.com/systmms/vaultmirror/internal/errors"
	"github.com/systmms/vaultmirror/internal/logging"
)

// Config carries runtime settings shared by all commands.
type Config struct {
	Path           string
	Debug          bool
	NoColor        bool
	NonInteractive bool
	Logger         *logging.Logger
	Definition     *Definition
}

// Definition is the parsed configuration file.
type Definition struct {
	Version    string           `yaml:"version"`
	Source     SourceConfig     `yaml:"source"`
	Clusters   []ClusterConfig  `yaml:"clusters"`
	Sync       SyncConfig       `yaml:"sync"`
	StateStore StateStoreConfig `yaml:"state_store"`
}

// SourceConfig selects and configures the vault item source.
type SourceConfig struct {
	Type       string `yaml:"type"`
	NotePrefix string `yaml:"note_prefix,omitempty"`
}

// ClusterConfig identifies one destination cluster.
type ClusterConfig struct {
	Name       string `yaml:"name"`
	Kubeconfig string `yaml:"kubeconfig,omitempty"`
	Context    string `yaml:"context,omitempty"`
}

// SyncConfig tunes reconciliation behavior.
type SyncConfig struct {
	Interval      string `yaml:"interval,omitempty"`
	Workers       int    `yaml:"workers,omitempty"`
	OrphanCleanup bool   `yaml:"orphan_cleanup,omitempty"`
}

// StateStoreConfig selects the sync-state backend.
type StateStoreConfig struct {
	Type string `yaml:"type,omitempty"` // file or postgres
	Path string `yaml:"path,omitempty"`
	DSN  string `yaml:"dsn,omitempty"`
}

// Load reads the config file at c.Path into c.Definition.
func (c *Config) Load() error {
	if c.Path == "" {
		c.Path = DefaultPath()
	}
	def, err := Load(c.Path)
	if err != nil {
		return err
	}
	c.Definition = def
	return nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if env := os.Getenv("VAULTMIRROR_CONFIG"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "vaultmirror.yaml"
	}
	return filepath.Join(home, ".config", "vaultmirror", "config.yaml")
}

// Load reads, validates and defaults a configuration file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vmerrors.UserError{
				Message:    fmt.Sprintf("Configuration file not found: %s", path),
				Suggestion: "Create a config file or pass --config with its location",
				Err:        err,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, vmerrors.SimplifyError(fmt.Errorf("failed to parse config file: %w", err))
	}

	def.applyDefaults()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) applyDefaults() {
	if d.Version == "" {
		d.Version = "1"
	}
	if d.Source.Type == "" {
		d.Source.Type = "bitwarden"
	}
	if d.Sync.Interval == "" {
		d.Sync.Interval = "5m"
	}
	if d.Sync.Workers == 0 {
		d.Sync.Workers = 4
	}
	if d.StateStore.Type == "" {
		d.StateStore.Type = "file"
	}
}

// Validate checks cross-field constraints the schema cannot express.
func (d *Definition) Validate() error {
	if len(d.Clusters) == 0 {
		return vmerrors.ConfigError{
			Field:      "clusters",
			Message:    "at least one cluster must be configured",
			Suggestion: "Add a clusters entry with a name and optional kubeconfig",
		}
	}

	seen := make(map[string]bool, len(d.Clusters))
	for _, c := range d.Clusters {
		if c.Name == "" {
			return vmerrors.ConfigError{
				Field:      "clusters.name",
				Message:    "every cluster needs a name",
				Suggestion: "Give each cluster a unique name; it keys the sync state",
			}
		}
		if seen[c.Name] {
			return vmerrors.ConfigError{
				Field:      "clusters.name",
				Value:      c.Name,
				Message:    "duplicate cluster name",
				Suggestion: "Cluster names must be unique; they key the sync state",
			}
		}
		seen[c.Name] = true
	}

	if _, err := d.SyncInterval(); err != nil {
		return vmerrors.ConfigError{
			Field:      "sync.interval",
			Value:      d.Sync.Interval,
			Message:    "invalid duration",
			Suggestion: "Use a Go duration such as 30s, 5m or 1h",
		}
	}

	if d.StateStore.Type == "postgres" && d.StateStore.DSN == "" {
		return vmerrors.ConfigError{
			Field:      "state_store.dsn",
			Message:    "postgres state store requires a dsn",
			Suggestion: "Set state_store.dsn to a postgres connection string",
		}
	}

	return nil
}

// SyncInterval parses the configured interval.
func (d *Definition) SyncInterval() (time.Duration, error) {
	return time.ParseDuration(d.Sync.Interval)
}
