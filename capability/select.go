package capability

import (
	"context"

	"github.com/kbukum/recipeflow/logger"
	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/recipe"
)

// Selection is a ready-to-call provider plus how it was chosen.
type Selection struct {
	Provider   provider.Capability
	Resolution Resolution
	// Model is the model to request; the node hint may refine the
	// resolved one.
	Model string
}

// Select resolves the candidates for the triple and returns the first one
// the selector finds registered and available. A node hint naming the
// chosen provider (or no provider) may override the model.
func (r *Resolver) Select(ctx context.Context, reg *provider.Registry, sel provider.Selector, projectID, stage string, c recipe.Capability, hint *recipe.CapabilityConfig) (*Selection, error) {
	candidates, err := r.Candidates(ctx, projectID, stage, c)
	if err != nil {
		return nil, err
	}
	if sel == nil {
		sel = provider.PrioritySelector{}
	}

	names := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		if !seen[cand.Provider] {
			seen[cand.Provider] = true
			names = append(names, cand.Provider)
		}
	}

	p, err := sel.Select(ctx, reg, names)
	if err != nil {
		return nil, err
	}

	// Registry keys and provider names are expected to match.
	res := Resolution{Provider: p.Name(), Source: candidates[0].Source}
	for _, cand := range candidates {
		if cand.Provider == p.Name() {
			res = cand
			break
		}
	}

	model := res.Model
	if hint != nil && hint.Model != "" && (hint.Provider == "" || hint.Provider == res.Provider) {
		model = hint.Model
	}
	if res != candidates[0] {
		r.log.Warn("capability fell back to lower tier", map[string]interface{}{
			logger.FieldProjectID:  projectID,
			logger.FieldStage:      stage,
			logger.FieldCapability: string(c),
			logger.FieldProvider:   res.Provider,
			"preferred":            candidates[0].Provider,
			"source":               string(res.Source),
		})
	}
	return &Selection{Provider: p, Resolution: res, Model: model}, nil
}
