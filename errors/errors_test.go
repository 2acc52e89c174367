package errors

import (
	"testing"
)

func TestSentinelIdentity(t *testing.T) {
	wrapped := Wrap(ErrConflict, "scan deals-2024 already running")

	if !Is(wrapped, ErrConflict) {
		t.Error("wrapped conflict error should match ErrConflict")
	}
	if Is(wrapped, ErrInvalidTransition) {
		t.Error("conflict error must not match ErrInvalidTransition")
	}
}

func TestIsConflict(t *testing.T) {
	err := NewConflictError("scan %s is already %s", "deals-2024", "running")

	if !IsConflict(err) {
		t.Error("expected IsConflict to be true")
	}
	if IsConflict(nil) {
		t.Error("nil is not a conflict")
	}
}

func TestIsAuthorization(t *testing.T) {
	err := Wrap(ErrAuthorization, "token rejected with 401")

	if !IsAuthorization(err) {
		t.Error("expected IsAuthorization to be true")
	}
	if IsTransientFetch(err) {
		t.Error("authorization errors are not transient")
	}
}

func TestDoubleWrapPreservesSentinel(t *testing.T) {
	inner := NewInvalidConfigurationError("batch size %d out of bounds", 500)
	outer := Wrap(inner, "start scan")

	if !IsInvalidConfiguration(outer) {
		t.Error("sentinel lost through double wrap")
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("scan not found: %s", "missing-id")

	if !IsNotFound(err) {
		t.Error("expected IsNotFound to be true")
	}
	if err.Error() == "" {
		t.Error("expected a message")
	}
}
