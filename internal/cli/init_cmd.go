package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new floe working directory",
	Long: `Creates the .floe state directory and, in an empty directory, a
starter configuration file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

const starterConfig = `variable "name" {
  type    = string
  default = "hello"
}

resource "null_resource" "example" {
  triggers = {
    name = var.name
  }
}

output "example_id" {
  value = null_resource.example.id
}
`

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir(args)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(dir, ".floe"), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	hasConfig := false
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".hcl" {
			hasConfig = true
			break
		}
	}

	if !hasConfig {
		path := filepath.Join(dir, "main.hcl")
		if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("failed to write starter configuration: %w", err)
		}
		fmt.Printf("Created %s\n", path)
	}

	fmt.Println("Floe has been initialized. Run 'floe plan' to get started.")
	return nil
}
