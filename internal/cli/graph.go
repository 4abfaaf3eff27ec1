package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/floehq/floe/internal/config"
	"github.com/floehq/floe/internal/engine"
	"github.com/floehq/floe/internal/lang"
)

var graphCmd = &cobra.Command{
	Use:   "graph [dir]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the resource dependency graph
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  floe graph | dot -Tpng > graph.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	dir, err := resolveDir(args)
	if err != nil {
		return err
	}

	cfg, err := config.NewLoader().LoadDir(dir)
	if err != nil {
		return err
	}
	values, err := resolveValues(cfg, dir)
	if err != nil {
		return err
	}

	expanded, err := engine.Expand(cfg.Resources, lang.NewScope(values))
	if err != nil {
		return err
	}
	graph, err := engine.BuildGraph(expanded)
	if err != nil {
		return err
	}

	fmt.Println("digraph floe {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, addr := range graph.CreationOrder() {
		fmt.Printf("  %q;\n", addr)
	}
	fmt.Println()

	for _, addr := range graph.CreationOrder() {
		for _, dep := range graph.Dependencies(addr) {
			fmt.Printf("  %q -> %q;\n", addr, dep)
		}
	}

	fmt.Println("}")
	return nil
}
