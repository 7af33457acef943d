package validation

import (
	"strings"
	"testing"

	"github.com/kbukum/recipeflow/errors"
)

type sampleNode struct {
	ID          string   `json:"id" validate:"required,identifier"`
	Type        string   `json:"type" validate:"required,oneof=text_generation data_processing"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxRetries  int      `json:"maxRetries" validate:"gte=0"`
}

func TestValidate_Struct(t *testing.T) {
	hot := 3.0
	tests := []struct {
		name      string
		input     sampleNode
		wantField string
	}{
		{"valid", sampleNode{ID: "n1", Type: "text_generation"}, ""},
		{"missing id", sampleNode{Type: "text_generation"}, "id"},
		{"bad identifier", sampleNode{ID: "-bad id", Type: "text_generation"}, "id"},
		{"bad type", sampleNode{ID: "n1", Type: "audio"}, "type"},
		{"temperature out of range", sampleNode{ID: "n1", Type: "data_processing", Temperature: &hot}, "temperature"},
		{"negative retries", sampleNode{ID: "n1", Type: "data_processing", MaxRetries: -1}, "maxRetries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			appErr, ok := errors.AsAppError(err)
			if !ok {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != errors.ErrCodeInvalidInput {
				t.Errorf("expected INVALID_INPUT, got %s", appErr.Code)
			}
			fields, _ := appErr.Details["fields"].([]FieldError)
			found := false
			for _, f := range fields {
				if f.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected field %q in %v", tt.wantField, fields)
			}
		})
	}
}

func TestValidator_Chain(t *testing.T) {
	v := Scoped("nodes[1]").
		Required("id", "").
		Identifier("outputKey", "has space").
		OneOf("errorPolicy", "explode", []string{"fail", "skip", "retry"}).
		Min("maxRetries", -1, 0).
		RangeFloat("temperature", 2.5, 0, 2).
		Custom(false, "capabilityConfig", "is required")

	if len(v.Errors()) != 6 {
		t.Fatalf("expected 6 errors, got %d: %v", len(v.Errors()), v.Errors())
	}
	if v.Errors()[0].Field != "nodes[1].id" {
		t.Errorf("expected scoped field name, got %q", v.Errors()[0].Field)
	}
	appErr := v.Validate()
	if appErr == nil || !strings.Contains(appErr.Message, "nodes[1].capabilityConfig: is required") {
		t.Errorf("unexpected message %v", appErr)
	}
}

func TestValidator_NoErrors(t *testing.T) {
	v := New().Required("id", "n1").OneOf("policy", "", []string{"fail"}).Identifier("key", "")
	if v.HasErrors() {
		t.Errorf("unexpected errors %v", v.Errors())
	}
	if v.Validate() != nil {
		t.Error("expected nil AppError")
	}
}

func TestValidator_Merge(t *testing.T) {
	a := New().Required("a", "")
	b := New().Required("b", "")
	if len(a.Merge(b).Errors()) != 2 {
		t.Errorf("expected merged errors")
	}
}

func TestRequired(t *testing.T) {
	if Required("name", "x") != nil {
		t.Error("expected nil")
	}
	if Required("name", "  ") == nil {
		t.Error("expected error for blank value")
	}
}
