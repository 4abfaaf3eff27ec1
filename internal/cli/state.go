package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and modify the state file",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resource addresses recorded in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show ADDRESS",
	Short: "Show the recorded attributes of one resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm ADDRESS",
	Short: "Forget a resource without destroying it",
	Long: `Removes a resource record from state. The real-world resource is
left untouched; the next plan will want to create it again.`,
	Args: cobra.ExactArgs(1),
	RunE: runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	backend, err := openBackend(".")
	if err != nil {
		return err
	}
	st, err := backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	for _, rec := range st.Resources {
		fmt.Println(rec.Addr())
	}
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	backend, err := openBackend(".")
	if err != nil {
		return err
	}
	st, err := backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	rec := st.Record(args[0])
	if rec == nil {
		return fmt.Errorf("no resource %q in state", args[0])
	}

	fmt.Printf("# %s (provider %s)\n", rec.Addr(), rec.Provider)
	for _, k := range sortedAttrKeys(rec.Inputs) {
		fmt.Printf("  %s = %s\n", k, formatValue(rec.Inputs[k]))
	}
	for _, k := range sortedAttrKeys(rec.Outputs) {
		if _, shadowed := rec.Inputs[k]; shadowed {
			continue
		}
		fmt.Printf("  %s = %s  # provider-assigned\n", k, formatValue(rec.Outputs[k]))
	}
	if len(rec.Dependencies) > 0 {
		fmt.Printf("  depends on: %v\n", rec.Dependencies)
	}
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	backend, err := openBackend(".")
	if err != nil {
		return err
	}
	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	st, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if st.Record(args[0]) == nil {
		return fmt.Errorf("no resource %q in state", args[0])
	}
	st.Remove(args[0])

	if err := backend.Write(ctx, st); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	fmt.Printf("Removed %s from state.\n", args[0])
	return nil
}
