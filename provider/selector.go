package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/kbukum/recipeflow/errors"
)

// Selector picks one provider out of an ordered candidate list.
type Selector interface {
	Select(ctx context.Context, reg *Registry, candidates []string) (Capability, error)
}

// PrioritySelector tries candidates in order and returns the first one
// that is registered and available.
type PrioritySelector struct {
	// SkipHealthCheck returns the first registered candidate without
	// calling IsAvailable.
	SkipHealthCheck bool
}

// Select returns the first usable provider in priority order.
func (s PrioritySelector) Select(ctx context.Context, reg *Registry, candidates []string) (Capability, error) {
	var tried []string
	for _, name := range candidates {
		if !reg.Has(name) {
			tried = append(tried, name+" (not registered)")
			continue
		}
		p, err := reg.Get(name)
		if err != nil {
			tried = append(tried, fmt.Sprintf("%s (%v)", name, err))
			continue
		}
		if s.SkipHealthCheck || p.IsAvailable(ctx) {
			return p, nil
		}
		tried = append(tried, name+" (unavailable)")
	}
	return nil, errors.ServiceUnavailable("provider").
		WithDetail("candidates", candidates).
		WithCause(fmt.Errorf("no available provider: %s", strings.Join(tried, ", ")))
}
