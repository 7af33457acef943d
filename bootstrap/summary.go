package bootstrap

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/kbukum/recipeflow/capability"
	"github.com/kbukum/recipeflow/recipe"
)

// Summary records what the engine was built with, for display at startup.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration

	store        string
	storage      string
	telemetry    bool
	recipes      int
	capabilities map[recipe.Capability]capability.Setting
}

// NewSummary creates an empty summary.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// Write prints the summary as a tree.
func (s *Summary) Write(w io.Writer, providers []string) {
	fmt.Fprintf(w, "\n🚀 %s v%s started in %.2fs\n\n", s.serviceName, s.version, s.startupDuration.Seconds())

	fmt.Fprintf(w, "📊 Infrastructure\n")
	fmt.Fprintf(w, "   ├── store: %s\n", s.store)
	fmt.Fprintf(w, "   ├── storage: %s\n", s.storage)
	fmt.Fprintf(w, "   └── telemetry: %s\n\n", enabled(s.telemetry))

	fmt.Fprintf(w, "🧩 Capabilities\n")
	caps := make([]string, 0, len(s.capabilities))
	for c := range s.capabilities {
		caps = append(caps, string(c))
	}
	slices.Sort(caps)
	for i, c := range caps {
		setting := s.capabilities[recipe.Capability(c)]
		model := setting.Model
		if model == "" {
			model = "default model"
		}
		fmt.Fprintf(w, "   %s %s → %s (%s)\n", branch(i, len(caps)), c, setting.Provider, model)
	}
	if len(caps) == 0 {
		fmt.Fprintf(w, "   └── none configured\n")
	}

	fmt.Fprintf(w, "\n🔌 Providers\n")
	for i, p := range providers {
		fmt.Fprintf(w, "   %s %s\n", branch(i, len(providers)), p)
	}
	if len(providers) == 0 {
		fmt.Fprintf(w, "   └── none registered\n")
	}

	fmt.Fprintf(w, "\n📜 Recipes loaded: %d\n\n", s.recipes)
}

// DisplaySummary writes the engine summary to w.
func (e *Engine) DisplaySummary(w io.Writer) {
	e.Summary.Write(w, e.Providers.List())
}

func branch(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
