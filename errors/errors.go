// Package errors provides error handling for hubscan.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrConflict) {
//	    // handle conflict
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Sentinel errors for the scan orchestration core.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidConfiguration indicates a malformed scan request, surfaced
	// before any job is created
	ErrInvalidConfiguration = New("invalid configuration")

	// ErrConflict indicates a duplicate scan id while one is active, or an
	// invalid action against a terminal job
	ErrConflict = New("conflict")

	// ErrInvalidTransition indicates an attempted status change out of a
	// terminal state, or a transition from the wrong source state
	ErrInvalidTransition = New("invalid state transition")

	// ErrAuthorization indicates the upstream credential is invalid or lacks
	// scope; never retried
	ErrAuthorization = New("authorization failed")

	// ErrTransientFetch indicates a retryable upstream failure
	// (network error, 5xx, rate-limit rejection)
	ErrTransientFetch = New("transient fetch failure")

	// ErrRecordDecode indicates a single malformed record within an
	// otherwise good page
	ErrRecordDecode = New("record decode failure")

	// ErrPersistence indicates a failed write to the store
	ErrPersistence = New("persistence failure")

	// ErrScanLimitExceeded indicates the per-tenant or global concurrency
	// ceiling was hit
	ErrScanLimitExceeded = New("concurrent scan limit exceeded")
)

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflict checks if an error is or wraps ErrConflict
func IsConflict(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsInvalidConfiguration checks if an error is or wraps ErrInvalidConfiguration
func IsInvalidConfiguration(err error) bool {
	return err != nil && Is(err, ErrInvalidConfiguration)
}

// IsAuthorization checks if an error is or wraps ErrAuthorization
func IsAuthorization(err error) bool {
	return err != nil && Is(err, ErrAuthorization)
}

// IsTransientFetch checks if an error is or wraps ErrTransientFetch
func IsTransientFetch(err error) bool {
	return err != nil && Is(err, ErrTransientFetch)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidConfigurationError creates an invalid-configuration error with a
// formatted message
func NewInvalidConfigurationError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidConfiguration, Newf(format, args...).Error())
}

// NewConflictError creates a conflict error with a formatted message
func NewConflictError(format string, args ...interface{}) error {
	return Wrap(ErrConflict, Newf(format, args...).Error())
}
