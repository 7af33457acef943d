package action

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kbukum/recipeflow/errors"
	"github.com/kbukum/recipeflow/recipe"
)

// PromptRenderer substitutes resolved inputs into a prompt template.
type PromptRenderer interface {
	Render(template string, input map[string]any) (string, error)
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// TemplateRenderer replaces {{path}} placeholders with values looked up in
// the input by dotted path. Strings are inserted verbatim, other values as
// JSON. Unknown placeholders render empty unless Strict is set.
type TemplateRenderer struct {
	Strict bool
}

// Render implements PromptRenderer.
func (r TemplateRenderer) Render(template string, input map[string]any) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		path := placeholder.FindStringSubmatch(m)[1]
		v, ok := recipe.Lookup(input, path)
		if !ok {
			missing = append(missing, path)
			return ""
		}
		return stringify(v)
	})
	if r.Strict && len(missing) > 0 {
		return "", errors.InvalidInput("prompt", "unresolved placeholders: "+strings.Join(missing, ", ")).
			WithDetail("placeholders", missing)
	}
	return out, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// promptFor returns the text sent to the provider: the rendered node
// prompt, or the "prompt" input when the node has none.
func promptFor(r PromptRenderer, node *recipe.Node, input map[string]any) (string, error) {
	if node.Prompt == "" {
		if p, ok := input["prompt"].(string); ok {
			return p, nil
		}
		return "", nil
	}
	return r.Render(node.Prompt, input)
}
