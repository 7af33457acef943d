package stream

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls a JSON value from model output that may be wrapped in
// markdown fences or surrounded by prose. It returns the trimmed input when
// no object or array is found.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)

	// Strip markdown code fences
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s[3:], "\n"); idx >= 0 {
			s = s[3+idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Take whichever of object or array opens first.
	open := strings.IndexAny(s, "{[")
	if open < 0 {
		return s
	}
	closing := "}"
	if s[open] == '[' {
		closing = "]"
	}
	end := strings.LastIndex(s, closing)
	if end > open {
		return s[open : end+1]
	}
	return s
}

// ParseJSON extracts and decodes a JSON value from model output.
func ParseJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(ExtractJSON(s)), &v); err != nil {
		return nil, err
	}
	return v, nil
}
