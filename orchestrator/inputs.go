package orchestrator

import (
	"strings"

	"github.com/kbukum/recipeflow/recipe"
)

// ExternalInputPrefix marks an input expression that reads the run's
// external input.
const ExternalInputPrefix = "external_input"

// unresolved is a mapping whose reference has no value.
type unresolved struct {
	param string
	expr  string
}

// ResolveInputs builds a node's input from its mapping. String expressions
// are interpreted as:
//
//   - external_input.<path>: dotted lookup into externalInput
//   - <key>.output[.<path>] or <key>[.<path>]: lookup into priorOutputs
//
// Anything else, including non-string values, passes through as a literal.
// References that cannot be resolved yield nil.
func ResolveInputs(mapping, priorOutputs, externalInput map[string]any) map[string]any {
	in, _ := resolveInputs(mapping, priorOutputs, externalInput, nil)
	return in
}

// resolveInputs also reports unresolved references. declared holds every
// output key of the recipe; an expression naming one is a reference even
// when no output exists for it yet.
func resolveInputs(mapping, outputs, external map[string]any, declared map[string]bool) (map[string]any, []unresolved) {
	in := make(map[string]any, len(mapping))
	var missing []unresolved
	for param, raw := range mapping {
		expr, ok := raw.(string)
		if !ok {
			in[param] = raw
			continue
		}
		v, isRef, found := resolveExpr(expr, outputs, external, declared)
		switch {
		case !isRef:
			in[param] = expr
		case found:
			in[param] = v
		default:
			in[param] = nil
			missing = append(missing, unresolved{param: param, expr: expr})
		}
	}
	return in, missing
}

func resolveExpr(expr string, outputs, external map[string]any, declared map[string]bool) (v any, isRef, found bool) {
	head, rest, _ := strings.Cut(expr, ".")
	if head == ExternalInputPrefix {
		v, found = recipe.Lookup(external, rest)
		return v, true, found
	}

	out, exists := outputs[head]
	if !exists {
		return nil, declared[head], false
	}
	switch {
	case rest == "output":
		rest = ""
	case strings.HasPrefix(rest, "output."):
		rest = strings.TrimPrefix(rest, "output.")
	}
	v, found = recipe.Lookup(out, rest)
	return v, true, found
}
