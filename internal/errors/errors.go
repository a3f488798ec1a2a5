package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// TargetError records a failure against a single (namespace, secret name)
// target. One target failing never aborts the rest of a pass; the error is
// persisted on that target's sync record and counted in the run summary.
type TargetError struct {
	Cluster   string
	Namespace string
	Name      string
	Op        string // create, update, delete, snapshot
	Err       error
}

func (e TargetError) Error() string {
	msg := fmt.Sprintf("%s %s/%s failed", e.Op, e.Namespace, e.Name)
	if e.Cluster != "" {
		msg = fmt.Sprintf("[%s] %s", e.Cluster, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e TargetError) Unwrap() error {
	return e.Err
}

// NamespaceNotFoundError marks a target whose namespace does not exist in the
// destination cluster. Recorded per target, never fatal to the pass.
type NamespaceNotFoundError struct {
	Cluster   string
	Namespace string
}

func (e NamespaceNotFoundError) Error() string {
	if e.Cluster != "" {
		return fmt.Sprintf("namespace %q not found in cluster %q", e.Namespace, e.Cluster)
	}
	return fmt.Sprintf("namespace %q not found", e.Namespace)
}

// SourceError enhances vault source errors with context
func SourceError(source string, operation string, err error) error {
	suggestion := getSourceSuggestion(source, err)

	return UserError{
		Message:    fmt.Sprintf("%s source error during %s", source, operation),
		Suggestion: suggestion,
		Err:        err,
	}
}

// getSourceSuggestion returns helpful suggestions based on source and error
func getSourceSuggestion(source string, err error) string {
	errStr := err.Error()

	switch source {
	case "bitwarden":
		if strings.Contains(errStr, "not logged in") {
			return "Run 'bw login' to authenticate with Bitwarden"
		}
		if strings.Contains(errStr, "vault is locked") {
			return "Run 'vaultmirror login' to unlock the vault and cache a session"
		}
		if strings.Contains(errStr, "command not found") {
			return "Install Bitwarden CLI: https://bitwarden.com/help/cli/"
		}
	}

	// Generic suggestions
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and source configuration"
	}

	return ""
}

// ClusterError enhances cluster gateway errors with context
func ClusterError(cluster string, operation string, err error) error {
	errStr := err.Error()
	suggestion := ""

	switch {
	case strings.Contains(errStr, "Unauthorized") || strings.Contains(errStr, "forbidden"):
		suggestion = "Check that the kubeconfig credentials can manage Secrets in the target namespaces"
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		suggestion = "Check cluster connectivity and the kubeconfig server address"
	case strings.Contains(errStr, "context deadline exceeded"):
		suggestion = "The API server did not respond in time. Check connectivity or raise the cluster timeout"
	}

	return UserError{
		Message:    fmt.Sprintf("cluster %s error during %s", cluster, operation),
		Suggestion: suggestion,
		Err:        err,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
		"server is currently unable",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(strings.ToLower(errStr), pattern) {
			return true
		}
	}

	return false
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
