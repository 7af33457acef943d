package stream

import (
	"fmt"
	"strings"
)

// ValidateFunc decides whether a parsed element is usable.
type ValidateFunc func(map[string]any) error

// RequireFields returns a validator that rejects elements missing any of
// fields, or carrying null or blank-string values for them.
func RequireFields(fields ...string) ValidateFunc {
	return func(m map[string]any) error {
		var missing []string
		for _, f := range fields {
			v, ok := m[f]
			if !ok || v == nil {
				missing = append(missing, f)
				continue
			}
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
		}
		return nil
	}
}

// All combines validators; the first failure wins.
func All(fns ...ValidateFunc) ValidateFunc {
	return func(m map[string]any) error {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(m); err != nil {
				return err
			}
		}
		return nil
	}
}
