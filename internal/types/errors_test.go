package types

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAppError(ErrCodeInternalDB, "failed to insert alert", cause)

	if !strings.Contains(err.Error(), "failed to insert alert") {
		t.Errorf("message missing from Error(): %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestHasCode(t *testing.T) {
	err := NewAppError(ErrCodeConflictAlertActive, "duplicate", nil)

	if !HasCode(err, ErrCodeConflictAlertActive) {
		t.Error("expected HasCode to match the direct error")
	}
	if HasCode(err, ErrCodeInternalDB) {
		t.Error("expected HasCode to reject a different code")
	}

	wrapped := fmt.Errorf("reconciling alerts: %w", err)
	if !HasCode(wrapped, ErrCodeConflictAlertActive) {
		t.Error("expected HasCode to see through fmt.Errorf wrapping")
	}

	if HasCode(errors.New("plain"), ErrCodeInternalDB) {
		t.Error("plain errors carry no code")
	}
	if HasCode(nil, ErrCodeInternalDB) {
		t.Error("nil carries no code")
	}
}

func TestIsStoreUnavailable(t *testing.T) {
	dbErr := NewAppError(ErrCodeInternalDB, "connection refused", nil)
	if !IsStoreUnavailable(fmt.Errorf("persisting snapshot: %w", dbErr)) {
		t.Error("expected store outage detection through wrapping")
	}

	upstream := NewAppError(ErrCodeUpstreamWeather, "provider down", nil)
	if IsStoreUnavailable(upstream) {
		t.Error("provider failures are not store outages")
	}
}
