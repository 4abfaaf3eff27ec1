package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan [dir]",
	Short: "Generate an execution plan",
	Long: `Generates an execution plan showing what actions floe will take
to reach the desired state defined in your configuration.

The plan shows:
  • Resources to be created
  • Resources to be updated (with attribute diff)
  • Resources to be replaced or deleted`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	r, err := newRun(ctx, args)
	if err != nil {
		return err
	}

	fmt.Print("Calculating plan... ")
	plan, err := r.eng.Plan(ctx, r.cfg, r.st, r.scope)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("plan generation failed: %w", err)
	}
	fmt.Println("OK")

	if plan.Empty() {
		fmt.Println("\nNo changes. Infrastructure is up-to-date.")
		renderSummary(plan.Summary)
		return nil
	}

	fmt.Println("\nFloe will perform the following actions:")
	renderPlan(plan)
	return nil
}
