package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := UserError{
		Message:    "something broke",
		Suggestion: "try again",
	}
	assert.Contains(t, err.Error(), "something broke")
	assert.Contains(t, err.Error(), "💡 Try: try again")
}

func TestUserErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("root cause")
	err := UserError{Message: "wrapper", Err: inner}
	assert.ErrorIs(t, err, inner)
}

func TestTargetErrorFormatting(t *testing.T) {
	t.Parallel()

	err := TargetError{
		Cluster:   "prod",
		Namespace: "apps",
		Name:      "db-creds",
		Op:        "update",
		Err:       errors.New("conflict"),
	}
	assert.Equal(t, "[prod] update apps/db-creds failed: conflict", err.Error())
}

func TestSourceErrorSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		wantHint string
	}{
		{"not logged in", errors.New("You are not logged in"), "bw login"},
		{"locked", errors.New("vault is locked"), "vaultmirror login"},
		{"missing cli", errors.New("bw: command not found"), "Install Bitwarden CLI"},
		{"timeout", errors.New("request timeout"), "timed out"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := SourceError("bitwarden", "list items", tt.err)
			assert.Contains(t, err.Error(), tt.wantHint)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection reset by peer"), true},
		{errors.New("Rate Limit exceeded"), true},
		{errors.New("too many requests"), true},
		{errors.New("the server is currently unable to handle the request"), true},
		{errors.New("secret not found"), false},
		{errors.New("invalid credentials"), false},
	}
	for _, tt := range tests {
		got := IsRetryable(tt.err)
		assert.Equal(t, tt.want, got, "error: %v", tt.err)
	}
}

func TestSimplifyErrorYAML(t *testing.T) {
	t.Parallel()

	err := SimplifyError(fmt.Errorf("parse failed: %w", errors.New("yaml: line 3: mapping values")))
	var ce ConfigError
	assert.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "Invalid YAML format")
}

func TestSimplifyErrorPassesThroughUserError(t *testing.T) {
	t.Parallel()

	original := UserError{Message: "already friendly"}
	assert.Equal(t, error(original), SimplifyError(original))
}
