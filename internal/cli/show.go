package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current state",
	Long:  `Displays every resource instance recorded in the state file.`,
	RunE:  runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	backend, err := openBackend(".")
	if err != nil {
		return err
	}
	st, err := backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(st.Resources) == 0 {
		fmt.Println("The state file is empty. No resources are being managed.")
		return nil
	}

	fmt.Printf("State version %d, serial %d, lineage %s\n", st.Version, st.Serial, st.Lineage)
	for _, rec := range st.Resources {
		fmt.Printf("\n# %s (provider %s)\n", rec.Addr(), rec.Provider)
		for _, k := range sortedAttrKeys(rec.Inputs) {
			fmt.Printf("  %s = %s\n", k, formatValue(rec.Inputs[k]))
		}
		for _, k := range sortedAttrKeys(rec.Outputs) {
			if _, shadowed := rec.Inputs[k]; shadowed {
				continue
			}
			fmt.Printf("  %s = %s  # provider-assigned\n", k, formatValue(rec.Outputs[k]))
		}
	}

	if len(st.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for _, k := range sortedAttrKeys(st.Outputs) {
			fmt.Printf("  %s = %s\n", k, formatValue(st.Outputs[k]))
		}
	}
	return nil
}
