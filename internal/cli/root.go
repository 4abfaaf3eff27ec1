// Package cli wires the floe commands: plan, apply, destroy, validate,
// test, output, graph, show, refresh, state and init.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/floehq/floe/internal/engine"
	"github.com/floehq/floe/internal/logging"
)

var (
	statePath     string
	backendType   string
	backendConfig map[string]string
	varFlags      []string
	varFiles      []string
	parallelism   int
	logLevel      string
	logFormat     string
	noColor       bool
)

var rootCmd = &cobra.Command{
	Use:   "floe",
	Short: "Declarative infrastructure reconciliation",
	Long: `Floe reconciles declared resources with their real-world counterparts.

Configuration is written in HCL: resources, variables with validation,
and outputs. Floe plans the minimal set of create/update/replace/delete
operations, executes them in dependency order, and records the result in
a state file so subsequent runs converge.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel, logFormat)
	},
	SilenceUsage: true,
}

// Execute runs the root command. Cancelling ctx stops in-flight work; the
// engine skips any operation that has not started.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&statePath, "state", ".floe/state.json", "Path to the local state file")
	pf.StringVar(&backendType, "backend", "local", "State backend type (local or s3)")
	pf.StringToStringVar(&backendConfig, "backend-config", nil, "Backend settings (format: key=value)")
	pf.StringArrayVar(&varFlags, "var", nil, "Set an input variable (format: name=value)")
	pf.StringArrayVar(&varFiles, "var-file", nil, "Load variable assignments from a file")
	pf.IntVar(&parallelism, "parallelism", engine.DefaultParallelism, "Maximum concurrent resource operations")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(versionCmd)
}
