package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestFaultNoticeIsTotal(t *testing.T) {
	kinds := []FaultKind{
		FaultPermissionDenied,
		FaultDeviceNotFound,
		FaultConnection,
		FaultTimeout,
		FaultDecode,
		FaultPlayback,
		FaultBackend,
		FaultEmptyCapture,
		FaultKind("never-seen"),
	}
	for _, kind := range kinds {
		if NewFault(kind, nil).Notice() == "" {
			t.Errorf("Expected a notice for kind %s", kind)
		}
	}
}

func TestAsFault(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewFault(FaultTimeout, errors.New("slow")))
	if f := AsFault(wrapped); f.Kind != FaultTimeout {
		t.Errorf("Expected kind %s, got %s", FaultTimeout, f.Kind)
	}

	// Unrecognized errors classify as backend faults so a notice always
	// exists.
	if f := AsFault(errors.New("plain")); f.Kind != FaultBackend {
		t.Errorf("Expected kind %s, got %s", FaultBackend, f.Kind)
	}
}

func TestIsFault(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewFault(FaultEmptyCapture, nil))
	if !IsFault(err, FaultEmptyCapture) {
		t.Error("Expected IsFault to match wrapped kind")
	}
	if IsFault(err, FaultTimeout) {
		t.Error("Expected IsFault to reject other kinds")
	}
	if IsFault(errors.New("plain"), FaultTimeout) {
		t.Error("Expected IsFault to reject non-faults")
	}
}
