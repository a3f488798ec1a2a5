package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vaultmirror/internal/vault"
)

func loginItem(id, name, password string) vault.Item {
	return vault.Item{
		ID:    id,
		Name:  name,
		Type:  vault.TypeLogin,
		Login: &vault.Login{Password: password},
		Fields: []vault.Field{
			{Name: "namespaces", Value: "production"},
		},
	}
}

func TestParseLoginItem(t *testing.T) {
	t.Parallel()

	item := vault.Item{
		ID:   "item-1",
		Name: "Database Admin",
		Type: vault.TypeLogin,
		Login: &vault.Login{
			Username: "admin",
			Password: "hunter2",
			TOTP:     "otpauth://totp/db",
		},
		Fields: []vault.Field{
			{Name: "namespaces", Value: "production, staging"},
		},
	}

	frags, warnings := Parse(item, Options{})
	require.Len(t, frags, 1)
	assert.Empty(t, warnings)

	frag := frags[0]
	assert.Equal(t, "item-1", frag.ItemID)
	assert.Equal(t, []string{"production", "staging"}, frag.Namespaces)
	assert.Equal(t, "database-admin", frag.SecretName)
	assert.Equal(t, "hunter2", frag.Keys["database-admin"])
	assert.Equal(t, "admin", frag.Keys["database-admin_username"])
	assert.Equal(t, "otpauth://totp/db", frag.Keys["database-admin_totp"])
}

func TestParseDirectiveOverrides(t *testing.T) {
	t.Parallel()

	item := vault.Item{
		ID:   "item-2",
		Name: "Payments API",
		Type: vault.TypeLogin,
		Login: &vault.Login{
			Username: "svc-payments",
			Password: "s3cret",
		},
		Fields: []vault.Field{
			{Name: "namespaces", Value: "payments"},
			{Name: "secret-name", Value: "payments-api"},
			{Name: "password-key", Value: "api_token"},
			{Name: "username-key", Value: "api_user"},
		},
	}

	frags, warnings := Parse(item, Options{})
	require.Len(t, frags, 1)
	assert.Empty(t, warnings)

	frag := frags[0]
	assert.Equal(t, "payments-api", frag.SecretName)
	assert.Equal(t, "s3cret", frag.Keys["api_token"])
	assert.Equal(t, "svc-payments", frag.Keys["api_user"])
	_, hasDefault := frag.Keys["payments-api"]
	assert.False(t, hasDefault)
}

func TestParseNoteDirectives(t *testing.T) {
	t.Parallel()

	item := vault.Item{
		ID:   "item-3",
		Name: "Webhook Secret",
		Type: vault.TypeSecureNote,
		Notes: "vaultmirror:namespaces=hooks\n" +
			"vaultmirror:secret-name=webhook\n" +
			"vaultmirror:label:team=platform\n" +
			"vaultmirror:annotation:owner=sre\n" +
			"the-shared-signing-secret",
	}

	frags, warnings := Parse(item, Options{})
	require.Len(t, frags, 1)
	assert.Empty(t, warnings)

	frag := frags[0]
	assert.Equal(t, []string{"hooks"}, frag.Namespaces)
	assert.Equal(t, "webhook", frag.SecretName)
	// No credential data, the stripped note body is the primary value.
	assert.Equal(t, "the-shared-signing-secret", frag.Keys["webhook"])
	assert.Equal(t, "platform", frag.Labels["team"])
	assert.Equal(t, "sre", frag.Annotations["owner"])
}

func TestParseFieldWinsOverNote(t *testing.T) {
	t.Parallel()

	item := loginItem("item-4", "svc", "pw")
	item.Notes = "vaultmirror:namespaces=from-note"

	frags, _ := Parse(item, Options{})
	require.Len(t, frags, 1)
	assert.Equal(t, []string{"production"}, frags[0].Namespaces)
}

func TestParseFencedBlock(t *testing.T) {
	t.Parallel()

	cert := "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----"
	item := vault.Item{
		ID:   "item-5",
		Name: "ingress-tls",
		Type: vault.TypeSecureNote,
		Notes: "vaultmirror:namespaces=edge\n" +
			"vaultmirror:begin:tls.crt\n" + cert + "\nvaultmirror:end\n",
	}

	frags, warnings := Parse(item, Options{})
	require.Len(t, frags, 1)
	assert.Empty(t, warnings)
	assert.Equal(t, cert, frags[0].Keys["tls.crt"])
}

func TestParseUnterminatedBlock(t *testing.T) {
	t.Parallel()

	item := vault.Item{
		ID:    "item-6",
		Name:  "broken",
		Notes: "vaultmirror:namespaces=edge\nvaultmirror:begin:tls.crt\ndangling",
	}

	frags, warnings := Parse(item, Options{})
	assert.Empty(t, frags) // block dropped, nothing else to emit
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "unterminated")
}

func TestParseCustomFieldsPassThrough(t *testing.T) {
	t.Parallel()

	item := loginItem("item-7", "app", "pw")
	item.Fields = append(item.Fields,
		vault.Field{Name: "API Endpoint", Value: "https://api.example.com"},
		vault.Field{Name: "client_id", Value: "abc"},
	)

	frags, _ := Parse(item, Options{})
	require.Len(t, frags, 1)
	assert.Equal(t, "https://api.example.com", frags[0].Keys["api-endpoint"])
	assert.Equal(t, "abc", frags[0].Keys["client_id"])
}

func TestParseIgnoreFields(t *testing.T) {
	t.Parallel()

	item := loginItem("item-8", "app", "pw")
	item.Fields = append(item.Fields,
		vault.Field{Name: "internal-note", Value: "do not sync"},
		vault.Field{Name: "ignore-fields", Value: "internal-note"},
	)

	frags, _ := Parse(item, Options{})
	require.Len(t, frags, 1)
	_, ok := frags[0].Keys["internal-note"]
	assert.False(t, ok)
	_, ok = frags[0].Keys["ignore-fields"]
	assert.False(t, ok)
}

func TestParseSkipsWithoutNamespaces(t *testing.T) {
	t.Parallel()

	item := vault.Item{ID: "item-9", Name: "untagged", Login: &vault.Login{Password: "pw"}}

	frags, warnings := Parse(item, Options{})
	assert.Empty(t, frags)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "no target namespaces")
}

func TestParseSkipsUnsanitizableName(t *testing.T) {
	t.Parallel()

	item := loginItem("item-10", "!!!", "pw")

	frags, warnings := Parse(item, Options{})
	assert.Empty(t, frags)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "cannot be sanitized")
}

func TestParseMalformedDirectiveWarns(t *testing.T) {
	t.Parallel()

	item := loginItem("item-11", "app", "pw")
	item.Notes = "vaultmirror:thisisnotadirective"

	frags, warnings := Parse(item, Options{})
	require.Len(t, frags, 1)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "malformed directive")
}

func TestParseCustomNotePrefix(t *testing.T) {
	t.Parallel()

	item := vault.Item{
		ID:    "item-12",
		Name:  "custom",
		Notes: "sync:namespaces=dev\npayload",
	}

	frags, _ := Parse(item, Options{NotePrefix: "sync:"})
	require.Len(t, frags, 1)
	assert.Equal(t, []string{"dev"}, frags[0].Namespaces)
	assert.Equal(t, "payload", frags[0].Keys["custom"])
}

func TestParseAllPreservesInputOrder(t *testing.T) {
	t.Parallel()

	items := make([]vault.Item, 50)
	for i := range items {
		items[i] = loginItem(itemID(i), "app", "pw")
	}
	// Every tenth item is skipped for having no namespaces.
	for i := 0; i < len(items); i += 10 {
		items[i].Fields = nil
	}

	frags, warnings := ParseAll(items, Options{})
	assert.Len(t, frags, 45)
	assert.Len(t, warnings, 5)

	prev := ""
	for _, frag := range frags {
		assert.Greater(t, frag.ItemID, prev)
		prev = frag.ItemID
	}
}

func itemID(i int) string {
	return string([]byte{'i', 'd', '-', byte('a' + i/26), byte('a' + i%26)})
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Database Admin", "database-admin"},
		{"simple", "simple"},
		{"UPPER", "upper"},
		{"a  b!!c", "a-b-c"},
		{"--leading--", "leading"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"tls.crt", "tls.crt"},
		{"API Key", "api-key"},
		{"client_id", "client_id"},
		{"..dots..", "dots"},
		{"???", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeKey(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeList(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b"}, normalizeList("a, B, a , ,b"))
	assert.Nil(t, normalizeList(""))
}
