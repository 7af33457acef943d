package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/recipeflow/dag"
	"github.com/kbukum/recipeflow/recipe"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate recipe files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				g, err := compileFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "✗ %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "✓ %s (%s): %d nodes\n", path, g.Recipe.ID, len(g.Order))
				for i, level := range g.Levels {
					fmt.Fprintf(out, "   level %d: %s\n", i, strings.Join(level, ", "))
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d recipes invalid", failed, len(args))
			}
			return nil
		},
	}
}

func compileFile(path string) (*dag.Graph, error) {
	r, err := recipe.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return dag.Compile(r)
}
