package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	vmerrors "github.com/systmms/vaultmirror/internal/errors"
)

// configSchema is the JSON Schema for the configuration file. The YAML
// document is decoded to generic values and validated against it before the
// typed unmarshal, so structural mistakes surface with field paths instead of
// Go decoding errors.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "version": {"type": ["string", "integer"]},
    "source": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "type": {"type": "string", "enum": ["bitwarden", "static"]},
        "note_prefix": {"type": "string"}
      }
    },
    "clusters": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "kubeconfig": {"type": "string"},
          "context": {"type": "string"}
        }
      }
    },
    "sync": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "interval": {"type": "string"},
        "workers": {"type": "integer", "minimum": 1, "maximum": 64},
        "orphan_cleanup": {"type": "boolean"}
      }
    },
    "state_store": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "type": {"type": "string", "enum": ["file", "postgres"]},
        "path": {"type": "string"},
        "dsn": {"type": "string"}
      }
    }
  },
  "required": ["clusters"]
}`

// ValidateSchema checks a raw YAML config document against the schema.
func ValidateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return vmerrors.SimplifyError(fmt.Errorf("failed to parse config file: %w", err))
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewGoLoader(normalize(doc)),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return vmerrors.ConfigError{
		Message:    "config file does not match the expected structure:\n    " + strings.Join(problems, "\n    "),
		Suggestion: "Compare your config against the documented example",
	}
}

// normalize converts YAML map[interface{}]interface{} values (produced for
// non-string keys) into JSON-compatible maps.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalize(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
