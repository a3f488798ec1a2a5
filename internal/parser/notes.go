package parser

import (
	"fmt"
	"strings"
)

// noteDirectives is the parsed control content of an item's note body.
// Control lines carry the reserved prefix (default "vaultmirror:"); everything
// else in the note is data. Fenced blocks let a note carry multi-line values
// such as certificates:
//
//	vaultmirror:begin:tls.crt
//	-----BEGIN CERTIFICATE-----
//	...
//	vaultmirror:end
type noteDirectives struct {
	directives map[string]string // reserved name -> raw value
	extraKeys  map[string]string // data key -> value (single-line tags + fenced blocks)
	labels     map[string]string
	annotations map[string]string
	stripped   string // note body with all control lines and fenced blocks removed
	warnings   []string
}

// parseNotes scans a note body for control lines and fenced blocks.
// Malformed directives never fail the item; they degrade to defaults and
// surface as warnings.
func parseNotes(notes, prefix string, reserved map[string]bool) noteDirectives {
	d := noteDirectives{
		directives:  make(map[string]string),
		extraKeys:   make(map[string]string),
		labels:      make(map[string]string),
		annotations: make(map[string]string),
	}
	if notes == "" {
		return d
	}

	var kept []string
	lines := strings.Split(notes, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, prefix) {
			kept = append(kept, line)
			continue
		}

		body := strings.TrimPrefix(trimmed, prefix)

		// Fenced multi-line block: begin:<key> ... end
		if strings.HasPrefix(body, "begin:") {
			key := strings.TrimSpace(strings.TrimPrefix(body, "begin:"))
			var block []string
			closed := false
			for i++; i < len(lines); i++ {
				inner := strings.TrimSpace(lines[i])
				if inner == prefix+"end" {
					closed = true
					break
				}
				block = append(block, lines[i])
			}
			if !closed {
				d.warnings = append(d.warnings, fmt.Sprintf("unterminated %sbegin:%s block ignored", prefix, key))
				continue
			}
			d.storeExtraKey(key, strings.Join(block, "\n"), reserved)
			continue
		}

		if body == "end" {
			d.warnings = append(d.warnings, fmt.Sprintf("stray %send without matching begin ignored", prefix))
			continue
		}

		name, value, ok := strings.Cut(body, "=")
		if !ok {
			d.warnings = append(d.warnings, fmt.Sprintf("malformed directive %q ignored", trimmed))
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)

		switch {
		case strings.HasPrefix(name, "label:"):
			d.labels[strings.TrimPrefix(name, "label:")] = value
		case strings.HasPrefix(name, "annotation:"):
			d.annotations[strings.TrimPrefix(name, "annotation:")] = value
		case reserved[name]:
			d.directives[name] = value
		default:
			d.storeExtraKey(name, value, reserved)
		}
	}

	d.stripped = strings.TrimSpace(strings.Join(kept, "\n"))
	return d
}

func (d *noteDirectives) storeExtraKey(key, value string, reserved map[string]bool) {
	sanitized := SanitizeKey(key)
	if sanitized == "" {
		d.warnings = append(d.warnings, fmt.Sprintf("key %q cannot be sanitized to a valid data key, dropped", key))
		return
	}
	if reserved[sanitized] {
		// Reserved names are control, never data.
		d.warnings = append(d.warnings, fmt.Sprintf("key %q collides with a reserved field name, dropped", key))
		return
	}
	d.extraKeys[sanitized] = value
}
