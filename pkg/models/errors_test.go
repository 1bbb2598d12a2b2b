package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	e := QuotaExceeded("daily unit quota exhausted")
	want := "quota_exceeded: daily unit quota exhausted"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	cause := errors.New("connection reset")
	wrapped := ProviderUnavailable("all fallbacks exhausted", cause)
	if wrapped.Unwrap() != cause {
		t.Error("expected Unwrap to return the cause")
	}
}

func TestAsAppError(t *testing.T) {
	e := NotFound("workflow abc123")
	wrapped := fmt.Errorf("get status: %w", e)

	typed, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("expected AsAppError to find AppError in chain")
	}
	if typed.Code != CodeNotFound {
		t.Errorf("expected code %s, got %s", CodeNotFound, typed.Code)
	}

	if _, ok := AsAppError(errors.New("plain")); ok {
		t.Error("expected plain error not to be an AppError")
	}
	if _, ok := AsAppError(nil); ok {
		t.Error("expected nil not to be an AppError")
	}
}

func TestApprovalErrorConstructors(t *testing.T) {
	// The approval error constructors carry an Err prefix so they can
	// coexist with the ApprovalDenied and ApprovalExpired state constants.
	if got := CodeOf(ErrApprovalDenied("no covering grant")); got != CodeApprovalDenied {
		t.Errorf("CodeOf(ErrApprovalDenied) = %s, want %s", got, CodeApprovalDenied)
	}
	if got := CodeOf(ErrApprovalExpired("timed out")); got != CodeApprovalExpired {
		t.Errorf("CodeOf(ErrApprovalExpired) = %s, want %s", got, CodeApprovalExpired)
	}
	var denied ApprovalState = ApprovalDenied
	if !denied.Terminal() {
		t.Error("expected the denied state constant to be terminal")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(WrongState("not pending")); got != CodeWrongState {
		t.Errorf("CodeOf = %s, want %s", got, CodeWrongState)
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Errorf("CodeOf(plain) = %s, want %s", got, CodeInternal)
	}
}

func TestProvider_Cost(t *testing.T) {
	p := Provider{CostPerKTokensIn: 3.0, CostPerKTokensOut: 15.0}
	got := p.Cost(2000, 1000)
	want := 2*3.0 + 1*15.0
	if got != want {
		t.Errorf("Cost(2000, 1000) = %f, want %f", got, want)
	}
}
