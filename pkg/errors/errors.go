// Package errors provides structured errors with stable machine-readable
// codes. Codes classify failures for exit-code mapping and retry decisions;
// messages stay human-readable.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a failure class.
type Code string

const (
	// ErrCodeValidation marks malformed local input (manifest, profile,
	// flag value). Never retried.
	ErrCodeValidation Code = "VALIDATION_ERROR"

	// ErrCodeNotAuthorized marks a permission failure reported by the
	// cluster for the caller's credentials.
	ErrCodeNotAuthorized Code = "NOT_AUTHORIZED"

	// ErrCodeInvalidSpec marks a manifest rejected by server-side schema
	// validation.
	ErrCodeInvalidSpec Code = "INVALID_SPEC"

	// ErrCodeClusterUnreachable marks a transport failure talking to the
	// cluster API. Retried a bounded number of times before surfacing.
	ErrCodeClusterUnreachable Code = "CLUSTER_UNREACHABLE"

	// ErrCodeRepoUnreachable marks a transport failure talking to a chart
	// repository.
	ErrCodeRepoUnreachable Code = "REPO_UNREACHABLE"

	// ErrCodeChartNotFound marks a chart missing from the repository index.
	ErrCodeChartNotFound Code = "CHART_NOT_FOUND"

	// ErrCodeNotFound marks a missing named object (profile, release, pod).
	ErrCodeNotFound Code = "NOT_FOUND"

	// ErrCodeReadinessTimeout marks pods that did not become ready within
	// the bounded wait. The underlying change is not rolled back.
	ErrCodeReadinessTimeout Code = "READINESS_TIMEOUT"

	// ErrCodeCheckFailed marks one or more failed diagnostic checks.
	ErrCodeCheckFailed Code = "CHECK_FAILED"

	// ErrCodeInternal marks a bug or impossible state.
	ErrCodeInternal Code = "INTERNAL"
)

// StructuredError is an error with a classification code and optional cause.
type StructuredError struct {
	Code    Code
	Message string
	Err     error
}

// New creates a StructuredError with the given code and message.
func New(code Code, message string) *StructuredError {
	return &StructuredError{Code: code, Message: message}
}

// Newf creates a StructuredError with a formatted message.
func Newf(code Code, format string, args ...any) *StructuredError {
	return &StructuredError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a StructuredError that records err as its cause.
// Returns nil if err is nil.
func Wrap(err error, code Code, message string) *StructuredError {
	if err == nil {
		return nil
	}
	return &StructuredError{Code: code, Message: message, Err: err}
}

func (e *StructuredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *StructuredError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the structured code from an error chain.
// Returns ErrCodeInternal for errors that carry no code.
func CodeOf(err error) Code {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	var se *StructuredError
	return errors.As(err, &se) && se.Code == code
}

// IsRetryable reports whether the error class is a transient transport
// failure worth a bounded retry.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeClusterUnreachable, ErrCodeRepoUnreachable:
		return true
	default:
		return false
	}
}
