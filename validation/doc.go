// Package validation checks recipe definitions and configuration.
//
// Struct tag validation wraps go-playground/validator and reports field
// names using their json tags:
//
//	type Node struct {
//	    ID   string `json:"id" validate:"required,identifier"`
//	    Type string `json:"type" validate:"required,oneof=text_generation data_processing"`
//	}
//	err := validation.Validate(node)
//
// The fluent Validator collects programmatic checks:
//
//	v := validation.New()
//	v.Required("id", node.ID).Custom(node.Capability != nil, "capabilityConfig", "is required")
//	if appErr := v.Validate(); appErr != nil { ... }
//
// Both return *errors.AppError with code INVALID_INPUT and a "fields" detail.
package validation
