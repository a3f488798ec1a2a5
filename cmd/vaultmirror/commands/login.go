package commands

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultmirror/internal/config"
	vmerrors "github.com/systmms/vaultmirror/internal/errors"
	"github.com/systmms/vaultmirror/internal/vault"
)

func NewLoginCommand(cfg *config.Config) *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Unlock the vault and cache a session",
		Long: `Unlock the Bitwarden vault and store the session token in the system
keychain, so sync passes can run without prompting.

The master password prompt comes from the Bitwarden CLI itself; the
password never passes through this tool.

Examples:
  vaultmirror login           # Unlock and cache a session
  vaultmirror login --clear   # Forget the cached session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions := vault.NewSessionCache()

			if clear {
				if err := sessions.Clear(); err != nil {
					return fmt.Errorf("failed to clear session: %w", err)
				}
				cfg.Logger.Info("Cached session cleared")
				return nil
			}

			if cfg.NonInteractive {
				return vmerrors.UserError{
					Message:    "login needs an interactive terminal for the master password prompt",
					Suggestion: "Set BW_SESSION in the environment instead, or run without --non-interactive",
				}
			}

			// bw prompts on the inherited terminal and prints the raw session
			// token on stdout.
			unlock := exec.Command("bw", "unlock", "--raw")
			unlock.Stdin = os.Stdin
			unlock.Stderr = os.Stderr
			var out bytes.Buffer
			unlock.Stdout = &out

			if err := unlock.Run(); err != nil {
				return vmerrors.UserError{
					Message:    "failed to unlock the vault",
					Suggestion: "Run 'bw login' first if you have never authenticated on this machine",
					Err:        err,
				}
			}

			token := strings.TrimSpace(out.String())
			if token == "" {
				return vmerrors.UserError{
					Message:    "bw unlock returned an empty session token",
					Suggestion: "Run 'bw unlock' directly to see what went wrong",
				}
			}

			if err := sessions.Store(token); err != nil {
				return fmt.Errorf("failed to cache session: %w", err)
			}
			cfg.Logger.Info("Session cached in the system keychain")
			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Forget the cached session")

	return cmd
}
