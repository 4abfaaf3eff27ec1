package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/floehq/floe/internal/ir"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy [dir]",
	Short: "Destroy all managed infrastructure",
	Long: `Destroys every resource tracked in the state file, in reverse
dependency order. This command is the inverse of 'floe apply'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	r, err := newRun(ctx, args)
	if err != nil {
		return err
	}

	if len(r.st.Resources) == 0 {
		fmt.Println("No resources in state. Nothing to destroy.")
		return nil
	}

	if err := r.backend.Lock(); err != nil {
		return err
	}
	defer r.backend.Unlock()

	plan, err := r.eng.PlanDestroy(ctx, r.cfg, r.st)
	if err != nil {
		return fmt.Errorf("destroy plan failed: %w", err)
	}

	fmt.Println("Floe will destroy the following resources:")
	renderPlan(plan)

	if !destroyAutoApprove {
		if !confirm("\nDo you really want to destroy all resources? (y/n): ") {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nDestroying %d resource(s)...\n\n", len(plan.Changes))

	persist := func(st *ir.State) error {
		return r.backend.Write(ctx, st)
	}
	report, applyErr := r.eng.Apply(ctx, plan, r.st, r.scope, persist, applyCallback)

	if len(r.st.Resources) == 0 {
		r.st.Outputs = nil
		if err := persist(r.st); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}
	}

	succeeded, failed, skipped := report.Counts()
	fmt.Printf("\nDestroy complete! Operations: %d succeeded, %d failed, %d skipped.\n", succeeded, failed, skipped)
	return applyErr
}
