package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/floehq/floe/internal/engine"
	"github.com/floehq/floe/internal/ir"
)

var applyAutoApprove bool

var applyCmd = &cobra.Command{
	Use:   "apply [dir]",
	Short: "Apply a configuration",
	Long:  `Builds or changes infrastructure according to floe configuration files.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	r, err := newRun(ctx, args)
	if err != nil {
		return err
	}

	if err := r.backend.Lock(); err != nil {
		return err
	}
	defer r.backend.Unlock()

	fmt.Print("Calculating plan... ")
	plan, err := r.eng.Plan(ctx, r.cfg, r.st, r.scope)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("plan generation failed: %w", err)
	}
	fmt.Println("OK")

	if plan.Empty() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		// Output definitions can change without any resource diff, so
		// the projected values still need to land in state.
		projected, err := refreshOutputs(ctx, r, &engine.ApplyReport{})
		if err != nil {
			return err
		}
		if len(projected) > 0 {
			fmt.Println("\nOutputs:")
			renderOutputs(projected)
		}
		return nil
	}

	fmt.Println("\nFloe will perform the following actions:")
	renderPlan(plan)

	if !applyAutoApprove {
		if !confirm("\nDo you want to perform these actions? (y/n): ") {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d change(s)...\n\n", len(plan.Changes))

	persist := func(st *ir.State) error {
		return r.backend.Write(ctx, st)
	}
	report, applyErr := r.eng.Apply(ctx, plan, r.st, r.scope, persist, applyCallback)

	projected, outErr := refreshOutputs(ctx, r, report)

	succeeded, failed, skipped := report.Counts()
	fmt.Printf("\nApply complete! Operations: %d succeeded, %d failed, %d skipped.\n", succeeded, failed, skipped)

	if applyErr != nil {
		return applyErr
	}
	if outErr != nil {
		return outErr
	}

	if len(projected) > 0 {
		fmt.Println("\nOutputs:")
		renderOutputs(projected)
	}
	return nil
}

// refreshOutputs projects output values from the current scope and
// persists them to state. Projection failures leave the stored
// outputs untouched.
func refreshOutputs(ctx context.Context, r *run, report *engine.ApplyReport) (map[string]*engine.OutputValue, error) {
	projected, err := engine.ProjectOutputs(r.cfg, r.scope, report)
	if err != nil {
		return nil, err
	}
	r.st.Outputs = engine.StateOutputs(projected)
	if err := r.backend.Write(ctx, r.st); err != nil {
		return nil, fmt.Errorf("failed to write state: %w", err)
	}
	return projected, nil
}

// confirm reads a yes/no answer from stdin.
func confirm(prompt string) bool {
	fmt.Print(prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
