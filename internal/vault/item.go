package vault

import (
	"context"
	"sort"
	"strings"
)

// ItemType identifies the kind of vault record an item represents.
type ItemType int

const (
	TypeLogin      ItemType = 1
	TypeSecureNote ItemType = 2
	TypeCard       ItemType = 3
	TypeIdentity   ItemType = 4
	TypeSSHKey     ItemType = 5
)

// Field is one custom key/value field on a vault item. Order is preserved as
// listed by the source; Hidden marks fields the vault UI masks.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Hidden bool   `json:"hidden"`
}

// Login holds credential data for login-type items.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTP     string `json:"totp,omitempty"`
}

// Item is one decrypted record from the vault source. Items are immutable
// within a pass; the core never writes back to the vault.
type Item struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Type   ItemType `json:"type"`
	Notes  string   `json:"notes"`
	Login  *Login   `json:"login,omitempty"`
	Fields []Field  `json:"fields,omitempty"`
}

// Canonical returns a deterministic serialization of every content-bearing
// field of the item. Custom fields are sorted by name then value, so the
// result is stable under field reordering but changes when any value does.
// This is the per-item input to the desired-secret content hash.
func (it Item) Canonical() string {
	var b strings.Builder
	b.WriteString("id=")
	b.WriteString(it.ID)
	b.WriteString("\x1fname=")
	b.WriteString(it.Name)
	b.WriteString("\x1fnotes=")
	b.WriteString(it.Notes)
	if it.Login != nil {
		b.WriteString("\x1fusername=")
		b.WriteString(it.Login.Username)
		b.WriteString("\x1fpassword=")
		b.WriteString(it.Login.Password)
		b.WriteString("\x1ftotp=")
		b.WriteString(it.Login.TOTP)
	}

	fields := make([]Field, len(it.Fields))
	copy(fields, it.Fields)
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].Name != fields[j].Name {
			return fields[i].Name < fields[j].Name
		}
		return fields[i].Value < fields[j].Value
	})
	for _, f := range fields {
		b.WriteString("\x1ffield:")
		b.WriteString(f.Name)
		b.WriteString("=")
		b.WriteString(f.Value)
	}
	return b.String()
}

// FieldValue returns the value of the first custom field with the given name
// (case-insensitive) and whether it was found.
func (it Item) FieldValue(name string) (string, bool) {
	for _, f := range it.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// ItemSource lists decrypted vault items. Implementations own authentication
// and decryption; the sync core only consumes the typed records.
type ItemSource interface {
	// Name returns the source's stable identifier (e.g. "bitwarden").
	Name() string

	// ListItems returns all items visible to the configured account.
	// The returned order is not guaranteed stable; callers that need a
	// reproducible pass order must sort by item ID.
	ListItems(ctx context.Context) ([]Item, error)

	// Validate checks that the source is reachable and authenticated.
	Validate(ctx context.Context) error
}

// SortItems orders items by ID, the documented stable pass order. Merge
// determinism depends on this, not on the source's listing order.
func SortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}
