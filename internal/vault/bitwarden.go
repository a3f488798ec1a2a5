package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// BitwardenSource lists vault items through the Bitwarden CLI. The CLI owns
// authentication and decryption; this source only shells out and decodes JSON.
type BitwardenSource struct {
	name     string
	sessions *SessionCache
	// runner is swapped in tests to avoid invoking the real CLI
	runner commandRunner
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// NewBitwardenSource creates a Bitwarden CLI source
func NewBitwardenSource(sessions *SessionCache) *BitwardenSource {
	return &BitwardenSource{
		name:     "bitwarden",
		sessions: sessions,
		runner:   runCommand,
	}
}

// Name returns the source name
func (bw *BitwardenSource) Name() string {
	return bw.name
}

// ListItems syncs the local vault cache and lists all decrypted items
func (bw *BitwardenSource) ListItems(ctx context.Context) ([]Item, error) {
	session, err := bw.session(ctx)
	if err != nil {
		return nil, err
	}

	// Refresh the local cache first so deleted items stop appearing.
	if _, err := bw.runner(ctx, "bw", "sync", "--session", session); err != nil {
		return nil, fmt.Errorf("failed to sync bitwarden vault: %w", cliError(err))
	}

	output, err := bw.runner(ctx, "bw", "list", "items", "--session", session)
	if err != nil {
		return nil, fmt.Errorf("failed to list bitwarden items: %w", cliError(err))
	}

	var raw []bitwardenItem
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse bitwarden item list: %w", err)
	}

	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		if r.DeletedDate != "" {
			continue // trashed items are not synced
		}
		items = append(items, r.toItem())
	}
	return items, nil
}

// Validate checks if the Bitwarden CLI is available and the vault is unlocked
func (bw *BitwardenSource) Validate(ctx context.Context) error {
	if _, err := exec.LookPath("bw"); err != nil {
		return fmt.Errorf("bitwarden CLI 'bw' not found in PATH. Install from: https://bitwarden.com/help/cli/")
	}

	output, err := bw.runner(ctx, "bw", "status")
	if err != nil {
		return fmt.Errorf("failed to check bitwarden status: %w", cliError(err))
	}

	var status bitwardenStatus
	if err := json.Unmarshal(output, &status); err != nil {
		return fmt.Errorf("failed to parse bitwarden status: %w", err)
	}

	switch status.Status {
	case "unauthenticated":
		return fmt.Errorf("not logged in. Run: bw login")
	case "locked":
		// Locked is fine as long as a session is cached
		if bw.sessions != nil {
			if _, err := bw.sessions.Load(); err == nil {
				return nil
			}
		}
		return fmt.Errorf("vault is locked and no session is cached")
	case "unlocked":
		return nil
	default:
		return fmt.Errorf("unknown bitwarden status: %s", status.Status)
	}
}

// session resolves the CLI session token: environment first, keyring second.
func (bw *BitwardenSource) session(ctx context.Context) (string, error) {
	if s := os.Getenv("BW_SESSION"); s != "" {
		return s, nil
	}
	if bw.sessions != nil {
		s, err := bw.sessions.Load()
		if err == nil && s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("no bitwarden session: set BW_SESSION or run 'vaultmirror login'")
}

// cliError surfaces stderr from a failed CLI invocation
func cliError(err error) error {
	if exitErr, ok := err.(*exec.ExitError); ok {
		stderr := strings.TrimSpace(string(exitErr.Stderr))
		if stderr != "" {
			return fmt.Errorf("%s", stderr)
		}
	}
	return err
}

// Bitwarden CLI data structures

type bitwardenStatus struct {
	Status    string `json:"status"`
	LastSync  string `json:"lastSync"`
	UserEmail string `json:"userEmail"`
	UserID    string `json:"userId"`
}

type bitwardenItem struct {
	ID          string           `json:"id"`
	Type        int              `json:"type"`
	Name        string           `json:"name"`
	Notes       string           `json:"notes"`
	Login       *bitwardenLogin  `json:"login"`
	Fields      []bitwardenField `json:"fields"`
	DeletedDate string           `json:"deletedDate"`
}

type bitwardenLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Totp     string `json:"totp"`
}

type bitwardenField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  int    `json:"type"`
}

// Field type 1 is "hidden" in the Bitwarden data model.
const bitwardenFieldHidden = 1

func (r bitwardenItem) toItem() Item {
	item := Item{
		ID:    r.ID,
		Name:  r.Name,
		Type:  ItemType(r.Type),
		Notes: r.Notes,
	}
	if r.Login != nil {
		item.Login = &Login{
			Username: r.Login.Username,
			Password: r.Login.Password,
			TOTP:     r.Login.Totp,
		}
	}
	for _, f := range r.Fields {
		item.Fields = append(item.Fields, Field{
			Name:   f.Name,
			Value:  f.Value,
			Hidden: f.Type == bitwardenFieldHidden,
		})
	}
	return item
}
