package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/floehq/floe/internal/config"
	"github.com/floehq/floe/internal/engine"
	"github.com/floehq/floe/internal/lang"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate configuration files",
	Long: `Parses the configuration, resolves variables, evaluates validation
predicates and checks the dependency graph for cycles. No provider is
contacted and no state is touched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir(args)
	if err != nil {
		return err
	}

	fmt.Println("Validating configuration...")

	cfg, err := config.NewLoader().LoadDir(dir)
	if err != nil {
		return err
	}
	values, err := resolveValues(cfg, dir)
	if err != nil {
		return err
	}

	// Expansion and graph construction catch unknown multipliers, duplicate
	// addresses and reference cycles without touching a provider.
	expanded, err := engine.Expand(cfg.Resources, lang.NewScope(values))
	if err != nil {
		return err
	}
	if _, err := engine.BuildGraph(expanded); err != nil {
		return err
	}

	fmt.Printf("\nConfiguration is valid: %d resource(s), %d variable(s), %d output(s).\n",
		len(cfg.Resources), len(cfg.Variables), len(cfg.Outputs))
	return nil
}
