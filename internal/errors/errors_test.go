package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCodeThroughChain(t *testing.T) {
	base := stdErrors.New("connection refused")
	err := fmt.Errorf("transfer: %w", Wrap(CodeStorageFailure, base, "debit account"))

	if got := CodeOf(err); got != CodeStorageFailure {
		t.Fatalf("unexpected code: %s", got)
	}
	if !stdErrors.Is(err, base) {
		t.Fatalf("expected cause to be reachable")
	}
	if !RetryableError(err) {
		t.Fatalf("storage failures should be retryable")
	}
	if MessageOf(err) != "debit account" {
		t.Fatalf("unexpected message: %q", MessageOf(err))
	}
}

func TestNewUsesRegisteredDefaults(t *testing.T) {
	err := New(CodeUnauthenticated, "")
	if err.Message() != "could not validate credentials" {
		t.Fatalf("unexpected default message: %q", err.Message())
	}
	if err.ShouldAlert() {
		t.Fatalf("unauthenticated should not alert")
	}
}

func TestRegisterCustomCode(t *testing.T) {
	const code Code = "TEST_CUSTOM"
	Register(code, Attributes{Message: "custom", Severity: SeverityCritical, Alert: true})
	err := New(code, "", WithAlert(false))
	if err.Severity() != SeverityCritical {
		t.Fatalf("unexpected severity: %s", err.Severity())
	}
	if err.ShouldAlert() {
		t.Fatalf("option should override registered alert flag")
	}
}

func TestIsComparesCodes(t *testing.T) {
	a := New(CodeNotFound, "customer missing")
	b := New(CodeNotFound, "account missing")
	if !stdErrors.Is(a, b) {
		t.Fatalf("errors with identical codes should match")
	}
	if IsCode(a, CodeConflict) {
		t.Fatalf("unexpected code match")
	}
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatalf("plain errors should map to UNKNOWN")
	}
}
