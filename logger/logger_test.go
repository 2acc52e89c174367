package logger

import (
	"testing"
)

func TestInitializeJSON(t *testing.T) {
	if err := Initialize(true); err != nil {
		t.Fatalf("Initialize(true) failed: %v", err)
	}
	if Logger == nil {
		t.Fatal("Logger is nil after Initialize")
	}
	if !JSONOutput {
		t.Error("JSONOutput flag not set")
	}
}

func TestInitializeConsole(t *testing.T) {
	if err := Initialize(false); err != nil {
		t.Fatalf("Initialize(false) failed: %v", err)
	}
	if JSONOutput {
		t.Error("JSONOutput flag should be false")
	}
}

func TestNamedBeforeInitialize(t *testing.T) {
	// The no-op logger from init() must tolerate Named and logging calls
	l := Named("scan")
	l.Infow("should not panic", "key", "value")
}
