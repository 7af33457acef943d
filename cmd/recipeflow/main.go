// Command recipeflow validates and runs recipe files.
//
// Usage:
//
//	recipeflow [--config FILE] <command> [flags]
//
// Commands:
//
//	validate  Check recipe files and print their execution levels
//	run       Execute a recipe and print the resulting execution
//	version   Print build information
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/recipeflow/version"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "recipeflow",
		Short:         "recipeflow runs DAG recipes of generation steps",
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./config/recipeflow.yml)")

	rootCmd.AddCommand(
		newValidateCmd(),
		newRunCmd(func() string { return configFile }),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "recipeflow", version.Get())
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
