package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestNewCarriesCodeAndDetails(t *testing.T) {
	err := New(CodeMissingFields, "Draft missing required fields.",
		WithDetail("missing", []string{"amount"}))

	if err.Code() != CodeMissingFields {
		t.Fatalf("unexpected code: %s", err.Code())
	}
	if err.Message() != "Draft missing required fields." {
		t.Fatalf("unexpected message: %q", err.Message())
	}
	missing, ok := err.Details()["missing"].([]string)
	if !ok || len(missing) != 1 || missing[0] != "amount" {
		t.Fatalf("unexpected details: %v", err.Details())
	}
}

func TestNewFallsBackToRegistryMessage(t *testing.T) {
	err := New(CodeStorageFailure, "")
	if err.Message() != "storage failure" {
		t.Fatalf("unexpected message: %q", err.Message())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeVeemAPI, cause, "request failed")

	if !stdErrors.Is(err, cause) {
		t.Fatal("wrapped cause must be reachable via errors.Is")
	}
	if got := err.Error(); got != "[VEEM_API_ERROR] request failed: connection refused" {
		t.Fatalf("unexpected rendering: %q", got)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeBadRequest, "nope"))
	if !stdErrors.Is(err, New(CodeBadRequest, "")) {
		t.Fatal("errors with the same code must match")
	}
	if stdErrors.Is(err, New(CodeVeemAPI, "")) {
		t.Fatal("different codes must not match")
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if CodeOf(stdErrors.New("boom")) != CodeUnhandled {
		t.Fatal("plain errors map to UNHANDLED")
	}
	if CodeOf(nil) != CodeUnhandled {
		t.Fatal("nil maps to UNHANDLED")
	}
}

func TestSeverityOverride(t *testing.T) {
	err := New(CodeBadRequest, "nope", WithSeverity(SeverityCritical))
	if err.Severity() != SeverityCritical {
		t.Fatalf("unexpected severity: %s", err.Severity())
	}
	if New(CodeBadRequest, "nope").Severity() != SeverityInfo {
		t.Fatal("default severity must come from the registry")
	}
}

func TestShouldAlertFollowsRegistry(t *testing.T) {
	if New(CodeBadRequest, "nope").ShouldAlert() {
		t.Fatal("BAD_REQUEST must not alert")
	}
	if !New(CodeStorageFailure, "down").ShouldAlert() {
		t.Fatal("STORAGE_FAILURE must alert")
	}
}

func TestDetailsReturnsCopy(t *testing.T) {
	err := New(CodeBadRequest, "nope", WithDetail("k", "v"))
	details := err.Details()
	details["k"] = "mutated"
	if err.Details()["k"] != "v" {
		t.Fatal("details must not be mutable from outside")
	}
}
