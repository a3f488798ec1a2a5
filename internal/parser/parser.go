package parser

import (
	"fmt"
	"strings"
	"sync"

	"github.com/systmms/vaultmirror/internal/vault"
)

// Default reserved field names. A custom field or note directive with one of
// these names controls how the item is synced and is never emitted as data.
const (
	FieldNamespaces   = "namespaces"
	FieldSecretName   = "secret-name"
	FieldPasswordKey  = "password-key"
	FieldUsernameKey  = "username-key"
	FieldIgnoreFields = "ignore-fields"

	// DefaultNotePrefix marks control lines inside note bodies.
	DefaultNotePrefix = "vaultmirror:"
)

// Fragment is the per-item, pre-merge representation of the keys an item
// contributes to one output Secret across one or more namespaces.
type Fragment struct {
	ItemID      string
	ItemName    string
	Namespaces  []string
	SecretName  string
	Keys        map[string]string
	Labels      map[string]string
	Annotations map[string]string

	// Canonical is the deterministic serialization of the whole source item,
	// hashed after merge so that metadata-only edits still bump the content
	// hash of every Secret the item contributes to.
	Canonical string
}

// Options configures reserved names. Zero value means defaults.
type Options struct {
	NotePrefix string
}

func (o Options) notePrefix() string {
	if o.NotePrefix == "" {
		return DefaultNotePrefix
	}
	return o.NotePrefix
}

var reservedFields = map[string]bool{
	FieldNamespaces:   true,
	FieldSecretName:   true,
	FieldPasswordKey:  true,
	FieldUsernameKey:  true,
	FieldIgnoreFields: true,
}

// Parse turns one vault item into zero or one fragments plus warnings.
// Parsing never fails: malformed directives degrade to defaults, items that
// resolve no namespaces or no valid secret name produce no fragment, and every
// degradation is reported as a warning for the pass summary.
func Parse(item vault.Item, opts Options) ([]Fragment, []string) {
	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf("item %q: %s", item.Name, fmt.Sprintf(format, args...)))
	}

	notes := parseNotes(item.Notes, opts.notePrefix(), reservedFields)
	for _, w := range notes.warnings {
		warn("%s", w)
	}

	// directive reads a reserved value: custom field wins, note tag is the
	// fallback.
	directive := func(name string) string {
		if v, ok := item.FieldValue(name); ok {
			return strings.TrimSpace(v)
		}
		return notes.directives[name]
	}

	namespaces := normalizeList(directive(FieldNamespaces))
	if len(namespaces) == 0 {
		warn("no target namespaces, skipped")
		return nil, warnings
	}

	secretName := directive(FieldSecretName)
	if secretName == "" {
		secretName = item.Name
	}
	sanitizedName := SanitizeName(secretName)
	if sanitizedName == "" {
		warn("secret name %q cannot be sanitized to a valid identifier, skipped", secretName)
		return nil, warnings
	}
	if sanitizedName != secretName && directive(FieldSecretName) != "" {
		warn("secret name %q sanitized to %q", secretName, sanitizedName)
	}

	keys := make(map[string]string)

	// Primary value: credential data if the item carries any, otherwise the
	// note body with all control content stripped.
	passwordKey := directive(FieldPasswordKey)
	if passwordKey == "" {
		passwordKey = sanitizedName
	} else if sk := SanitizeKey(passwordKey); sk != passwordKey {
		warn("password key %q sanitized to %q", passwordKey, sk)
		passwordKey = sk
	}
	if passwordKey == "" {
		passwordKey = sanitizedName
	}

	hasCredential := item.Login != nil && item.Login.Password != ""
	if hasCredential {
		keys[passwordKey] = item.Login.Password
		if item.Login.Username != "" {
			usernameKey := directive(FieldUsernameKey)
			if usernameKey == "" {
				usernameKey = passwordKey + "_username"
			} else if sk := SanitizeKey(usernameKey); sk != usernameKey {
				warn("username key %q sanitized to %q", usernameKey, sk)
				usernameKey = sk
			}
			if usernameKey != "" {
				keys[usernameKey] = item.Login.Username
			}
		}
		if item.Login.TOTP != "" {
			keys[passwordKey+"_totp"] = item.Login.TOTP
		}
	} else if notes.stripped != "" {
		keys[passwordKey] = notes.stripped
	}

	// Non-reserved custom fields pass through as data.
	for _, f := range item.Fields {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if reservedFields[name] {
			continue
		}
		sanitized := SanitizeKey(f.Name)
		if sanitized == "" {
			warn("field %q cannot be sanitized to a valid data key, dropped", f.Name)
			continue
		}
		keys[sanitized] = f.Value
	}

	// Extra keys from note tags and fenced blocks.
	for k, v := range notes.extraKeys {
		keys[k] = v
	}

	// ignore-fields removes keys after everything else is assembled and is
	// itself never emitted.
	for _, ignored := range normalizeList(directive(FieldIgnoreFields)) {
		delete(keys, ignored)
	}

	if len(keys) == 0 {
		warn("no data keys resolved, skipped")
		return nil, warnings
	}

	frag := Fragment{
		ItemID:      item.ID,
		ItemName:    item.Name,
		Namespaces:  namespaces,
		SecretName:  sanitizedName,
		Keys:        keys,
		Labels:      notes.labels,
		Annotations: notes.annotations,
		Canonical:   item.Canonical(),
	}
	return []Fragment{frag}, warnings
}

// ParseAll parses all items concurrently. Parse is a pure function per item,
// so the fan-out is unbounded; results are collected back into input order so
// the output is identical to a sequential pass. Items must already be in the
// stable pass order (sorted by ID).
func ParseAll(items []vault.Item, opts Options) ([]Fragment, []string) {
	perItemFrags := make([][]Fragment, len(items))
	perItemWarns := make([][]string, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item vault.Item) {
			defer wg.Done()
			perItemFrags[i], perItemWarns[i] = Parse(item, opts)
		}(i, item)
	}
	wg.Wait()

	var fragments []Fragment
	var warnings []string
	for i := range items {
		fragments = append(fragments, perItemFrags[i]...)
		warnings = append(warnings, perItemWarns[i]...)
	}
	return fragments, warnings
}
