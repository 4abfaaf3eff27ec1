package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var outputJSON bool

var outputCmd = &cobra.Command{
	Use:   "output [name]",
	Short: "Show output values from state",
	Long: `Reads output values recorded by the last apply.

If no name is given, all outputs are displayed. If a name is given,
only that output's value is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOutput,
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
}

func runOutput(cmd *cobra.Command, args []string) error {
	backend, err := openBackend(".")
	if err != nil {
		return err
	}
	st, err := backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(args) > 0 {
		name := args[0]
		val, ok := st.Outputs[name]
		if !ok {
			return fmt.Errorf("output %q not found", name)
		}
		if outputJSON {
			data, err := json.Marshal(val)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			fmt.Println(formatValue(val))
		}
		return nil
	}

	if len(st.Outputs) == 0 {
		fmt.Println("No outputs recorded.")
		return nil
	}

	if outputJSON {
		data, err := json.MarshalIndent(st.Outputs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	for _, k := range sortedAttrKeys(st.Outputs) {
		fmt.Printf("%s = %s\n", k, formatValue(st.Outputs[k]))
	}
	return nil
}
