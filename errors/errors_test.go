package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_New_Retryable(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{ErrCodeProvider, true},
		{ErrCodeParse, true},
		{ErrCodeTimeout, true},
		{ErrCodeStructural, false},
		{ErrCodeNoCapability, false},
		{ErrCodeInternal, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "msg")
			if err.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v for %s, got %v", tt.retryable, tt.code, err.Retryable)
			}
		})
	}
}

func TestAppError_Error_WithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Provider("ollama", cause)
	got := err.Error()
	if !strings.Contains(got, "PROVIDER_ERROR") || !strings.Contains(got, "connection refused") {
		t.Errorf("unexpected error string %q", got)
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestAppError_Structural_WrapsSentinel(t *testing.T) {
	sentinel := stderrors.New("cycle detected")
	err := Structural(fmt.Errorf("dag: %w: a -> b -> a", sentinel))
	if err.Code != ErrCodeStructural {
		t.Errorf("expected STRUCTURAL_ERROR, got %s", err.Code)
	}
	if !stderrors.Is(err, sentinel) {
		t.Error("expected sentinel in chain")
	}
	if err.Retryable {
		t.Error("structural errors should not be retryable")
	}
}

func TestAppError_Resolution_Details(t *testing.T) {
	err := Resolution("n1", "topic", "external_input.missing")
	if err.Details["node_id"] != "n1" {
		t.Errorf("expected node_id=n1, got %v", err.Details["node_id"])
	}
	if err.Details["expression"] != "external_input.missing" {
		t.Errorf("unexpected expression detail %v", err.Details["expression"])
	}
}

func TestAppError_NotFound_EmptyID(t *testing.T) {
	err := NotFound("recipe", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
}

func TestAppError_WithDetails(t *testing.T) {
	err := Parse("no records").WithDetail("node_id", "n2").WithDetails(map[string]any{"received": 0})
	if err.Details["node_id"] != "n2" || err.Details["received"] != 0 {
		t.Errorf("unexpected details %v", err.Details)
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NoCapabilityConfigured("textGeneration", "p1", "draft"))
	if got := CodeOf(wrapped); got != ErrCodeNoCapability {
		t.Errorf("expected NO_CAPABILITY_CONFIGURED, got %s", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != ErrCodeInternal {
		t.Errorf("expected INTERNAL_ERROR for plain errors, got %s", got)
	}
	if !HasCode(wrapped, ErrCodeNoCapability) {
		t.Error("expected HasCode to match")
	}
	if HasCode(nil, ErrCodeNoCapability) {
		t.Error("nil error should not match")
	}
}

func TestAsAppError(t *testing.T) {
	if _, ok := AsAppError(stderrors.New("x")); ok {
		t.Error("plain error should not convert")
	}
	appErr, ok := AsAppError(fmt.Errorf("wrap: %w", Unsupported("ollama", "imageGeneration")))
	if !ok || appErr.Code != ErrCodeUnsupported {
		t.Errorf("expected UNSUPPORTED_CAPABILITY, got %v", appErr)
	}
	if !IsAppError(appErr) {
		t.Error("expected IsAppError")
	}
}
