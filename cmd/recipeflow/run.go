package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/recipeflow/bootstrap"
	"github.com/kbukum/recipeflow/config"
	"github.com/kbukum/recipeflow/orchestrator"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/stream"
)

type runFlags struct {
	recipeID  string
	projectID string
	inputs    []string
	inputFile string
	parallel  bool
	summary   bool
}

func newRunCmd(configFile func() string) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [FILE]",
		Short: "Run a recipe file, or a stored recipe with --id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && f.recipeID == "" {
				return fmt.Errorf("a recipe file or --id is required")
			}
			req := orchestrator.RunRequest{RecipeID: f.recipeID, ProjectID: f.projectID}
			if len(args) == 1 {
				r, err := recipe.LoadFile(args[0])
				if err != nil {
					return err
				}
				req.Recipe = r
			}
			input, err := parseInputs(f.inputFile, f.inputs)
			if err != nil {
				return err
			}
			req.ExternalInput = input
			req.OnRecord = func(nodeID string, attempt int, r stream.Record) {
				if attempt > 1 && r.Index == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s: attempt %d restarts records\n", nodeID, attempt)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: record %d (%.0f%%)\n", nodeID, r.Index, r.Progress*100)
			}

			var opts []config.LoaderOption
			if path := configFile(); path != "" {
				opts = append(opts, config.WithConfigFile(path))
			}
			cfg, err := bootstrap.Load("recipeflow", opts...)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Engine.Parallel = f.parallel
			}

			ctx := cmd.Context()
			engine, err := bootstrap.New(ctx, cfg)
			if err != nil {
				return err
			}
			if f.summary {
				engine.DisplaySummary(cmd.ErrOrStderr())
			}

			var exec *recipe.Execution
			err = engine.RunTask(ctx, func(ctx context.Context) error {
				var err error
				exec, err = engine.Orchestrator.Run(ctx, req)
				return err
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(exec); err != nil {
				return err
			}
			if exec.Status != recipe.ExecutionCompleted {
				return fmt.Errorf("execution %s %s", exec.ID, exec.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&f.recipeID, "id", "", "Run a recipe loaded from the configured recipe_dirs")
	cmd.Flags().StringVar(&f.projectID, "project", "", "Project whose capability overrides apply")
	cmd.Flags().StringSliceVar(&f.inputs, "input", nil, "External input as KEY=VALUE; JSON values are decoded (repeatable)")
	cmd.Flags().StringVar(&f.inputFile, "input-file", "", "JSON object file with external input")
	cmd.Flags().BoolVar(&f.parallel, "parallel", false, "Run independent nodes of a level concurrently")
	cmd.Flags().BoolVar(&f.summary, "summary", false, "Print the engine summary before running")

	return cmd
}

// parseInputs merges the input file with KEY=VALUE pairs; pairs win.
func parseInputs(file string, pairs []string) (map[string]any, error) {
	input := make(map[string]any)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("input file %s: %w", file, err)
		}
	}
	for _, kv := range pairs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		input[key] = v
	}
	return input, nil
}
