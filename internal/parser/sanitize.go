package parser

import "strings"

// maxNameLength is the Kubernetes limit for Secret names and data keys
// (DNS subdomain length).
const maxNameLength = 253

// SanitizeName converts an arbitrary item name into a valid Secret name:
// lowercase, runs of non-alphanumerics collapsed to a single dash, truncated
// to the identifier limit with trailing separators stripped. Returns "" when
// nothing valid remains; callers drop the item rather than emit a mutated
// invalid name.
func SanitizeName(name string) string {
	var b strings.Builder
	lastSep := true // leading separators are dropped
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		default:
			if !lastSep {
				b.WriteByte('-')
				lastSep = true
			}
		}
	}
	out := b.String()
	if len(out) > maxNameLength {
		out = out[:maxNameLength]
	}
	return strings.Trim(out, "-")
}

// SanitizeKey converts a field name into a valid Secret data key. Data keys
// are laxer than names: dots and underscores survive, everything else
// collapses to a single dash.
func SanitizeKey(key string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			lastSep = false
		default:
			if !lastSep {
				b.WriteByte('-')
				lastSep = true
			}
		}
	}
	out := b.String()
	if len(out) > maxNameLength {
		out = out[:maxNameLength]
	}
	return strings.Trim(out, "-._")
}

// normalizeList splits a comma-separated list, trims, lowercases, and
// deduplicates while preserving first-seen order.
func normalizeList(value string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
