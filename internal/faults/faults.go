// Package faults defines the typed error taxonomy shared by executors, the
// delivery clients, and the pipeline. The pipeline is the only layer that
// turns one of these into a terminal job error record.
package faults

import (
	"context"
	"errors"
	"fmt"
)

// Well-known error codes surfaced on job records and export logs.
const (
	CodeUnsupportedType  = "unsupported_output_type"
	CodeUnsupportedTask  = "unsupported_task"
	CodeMissingConfig    = "missing_config"
	CodeInvalidSnapshot  = "invalid_snapshot"
	CodeInvalidReference = "invalid_reference"
	CodeFileSizeExceeded = "file_size_exceeded"
	CodeTimeout          = "timeout"
	CodeRateLimited      = "rate_limited"
	CodeUpstreamError    = "upstream_error"
	CodeAuthFailed       = "auth_failed"
	CodeNeedsReauth      = "needs_reauth"
	CodeCancelled        = "cancelled"
	CodeInternal         = "internal"
)

// ConfigurationError indicates the job can never succeed as configured:
// missing or invalid snapshot fields, unsupported output types or tasks.
// Never retryable.
type ConfigurationError struct {
	Code    string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Code, e.Message)
}

// ValidationError indicates the inputs violate a hard limit or shape
// requirement (size ceilings, malformed references). Never retryable.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error (%s): %s", e.Code, e.Message)
}

// TransientError indicates a failure that may succeed on retry: timeouts,
// 5xx responses, rate limits.
type TransientError struct {
	Code    string
	Message string
	Cause   error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient error (%s): %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("transient error (%s): %s", e.Code, e.Message)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// AuthError indicates an authentication or authorization failure against an
// external provider. NeedsReauth marks a revoked grant: the integration must
// be manually reconnected and the error is never retried automatically.
type AuthError struct {
	Code        string
	Message     string
	NeedsReauth bool
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Code, e.Message)
}

// Configuration builds a ConfigurationError with the given code.
func Configuration(code, format string, args ...any) error {
	return &ConfigurationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a ValidationError with the given code.
func Validation(code, format string, args ...any) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Transient builds a TransientError wrapping cause (cause may be nil).
func Transient(code string, cause error, format string, args ...any) error {
	return &TransientError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Auth builds an AuthError. needsReauth marks revoked-grant failures.
func Auth(code string, needsReauth bool, format string, args ...any) error {
	return &AuthError{Code: code, Message: fmt.Sprintf(format, args...), NeedsReauth: needsReauth}
}

// IsRetryable reports whether err may succeed on a later attempt. This is the
// single retryability decision point: network-class failures and timeouts are
// retryable, configuration/validation/auth failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	// A deadline hit without a typed wrapper still counts as a timeout.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}

// NeedsReauth reports whether err carries a revoked-grant auth failure.
func NeedsReauth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.NeedsReauth
}

// CodeOf extracts the short error code from a taxonomy error. Unknown errors
// map to the generic internal code.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}

	var (
		cfgErr   *ConfigurationError
		valErr   *ValidationError
		transErr *TransientError
		authErr  *AuthError
	)
	switch {
	case errors.As(err, &cfgErr):
		return cfgErr.Code
	case errors.As(err, &valErr):
		return valErr.Code
	case errors.As(err, &transErr):
		return transErr.Code
	case errors.As(err, &authErr):
		return authErr.Code
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	default:
		return CodeInternal
	}
}
