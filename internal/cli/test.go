package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/cobra"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/floehq/floe/internal/config"
	"github.com/floehq/floe/internal/engine"
	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/lang"
	"github.com/floehq/floe/internal/provider"
)

var testCmd = &cobra.Command{
	Use:   "test [dir]",
	Short: "Run configuration tests",
	Long: `Executes every *.flt.hcl test file in the configuration directory.

A test file holds run blocks executed in order against an in-memory
state; nothing is persisted to disk. Each run plans (the default) or
applies the configuration and then checks its assertions:

  run "creates the pool" {
    command = "apply"

    assert {
      condition     = aws_cognito_user_pool.main.pool_name == "customers"
      error_message = "unexpected pool name"
    }
  }`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTest,
}

var testRunSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "run", LabelNames: []string{"name"}},
	},
}

var testRunBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "command"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "assert"},
	},
}

var testAssertSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "condition", Required: true},
		{Name: "error_message"},
	},
}

type testRun struct {
	name    string
	command string
	asserts []testAssert
}

type testAssert struct {
	condition    hcl.Expression
	errorMessage string
	declRange    hcl.Range
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dir, err := resolveDir(args)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), config.TestSuffix) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		fmt.Printf("No test files (*%s) found in %s.\n", config.TestSuffix, dir)
		return nil
	}

	cfg, err := config.NewLoader().LoadDir(dir)
	if err != nil {
		return err
	}
	values, err := resolveValues(cfg, dir)
	if err != nil {
		return err
	}

	var failures int
	for _, path := range files {
		runs, err := parseTestFile(path)
		if err != nil {
			return err
		}

		fmt.Printf("%s:\n", filepath.Base(path))

		// Each file gets its own in-memory state and providers; runs within
		// a file share them so an apply feeds later plans.
		registry := provider.NewRegistry()
		st := ir.NewState()
		if err := loadProviders(ctx, registry, cfg, st); err != nil {
			return err
		}
		eng := engine.New(registry)
		eng.Parallelism = parallelism
		scope := lang.NewScope(values)

		for _, tr := range runs {
			failed, err := executeTestRun(ctx, eng, cfg, st, scope, tr)
			if err != nil {
				return err
			}
			failures += failed
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d assertion(s) failed", failures)
	}
	fmt.Println("\nAll tests passed.")
	return nil
}

func executeTestRun(ctx context.Context, eng *engine.Engine, cfg *ir.Config, st *ir.State, scope *lang.Scope, tr testRun) (int, error) {
	plan, err := eng.Plan(ctx, cfg, st, scope)
	if err != nil {
		return 0, fmt.Errorf("run %q: %w", tr.name, err)
	}
	if tr.command == "apply" {
		noPersist := func(*ir.State) error { return nil }
		if _, err := eng.Apply(ctx, plan, st, scope, noPersist, nil); err != nil {
			return 0, fmt.Errorf("run %q: %w", tr.name, err)
		}
	}

	evalCtx := scope.EvalContext()
	failed := 0
	for _, a := range tr.asserts {
		ok, err := evalAssertion(a, evalCtx)
		if err != nil {
			return 0, fmt.Errorf("run %q: %w", tr.name, err)
		}
		if !ok {
			failed++
			msg := a.errorMessage
			if msg == "" {
				msg = "condition evaluated to false"
			}
			fmt.Printf("  %sFAIL%s %s: %s (%s)\n", colorize(colorRed), colorize(colorReset), tr.name, msg, a.declRange)
		}
	}
	if failed == 0 {
		fmt.Printf("  %sPASS%s %s\n", colorize(colorGreen), colorize(colorReset), tr.name)
	}
	return failed, nil
}

func evalAssertion(a testAssert, evalCtx *hcl.EvalContext) (bool, error) {
	val, diags := a.condition.Value(evalCtx)
	if diags.HasErrors() {
		return false, fmt.Errorf("assertion at %s failed to evaluate: %s", a.declRange, diags.Error())
	}
	if !val.IsWhollyKnown() {
		// A plan-mode run leaves created values unknown; the assertion
		// cannot pass or fail, which is itself a failure.
		return false, nil
	}
	val, err := convert.Convert(val, cty.Bool)
	if err != nil || val.IsNull() {
		return false, fmt.Errorf("assertion at %s must produce a bool", a.declRange)
	}
	return val.True(), nil
}

func parseTestFile(path string) ([]testRun, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: %s", path, diags.Error())
	}

	content, diags := file.Body.Content(testRunSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: %s", path, diags.Error())
	}

	var runs []testRun
	for _, block := range content.Blocks {
		tr := testRun{name: block.Labels[0], command: "plan"}

		body, diags := block.Body.Content(testRunBodySchema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: %s", path, diags.Error())
		}

		if attr, ok := body.Attributes["command"]; ok {
			val, valDiags := attr.Expr.Value(nil)
			if valDiags.HasErrors() || val.Type() != cty.String {
				return nil, fmt.Errorf("%s: run %q: command must be a string", path, tr.name)
			}
			tr.command = val.AsString()
		}
		if tr.command != "plan" && tr.command != "apply" {
			return nil, fmt.Errorf("%s: run %q: command must be \"plan\" or \"apply\"", path, tr.name)
		}

		for _, ab := range body.Blocks {
			aContent, aDiags := ab.Body.Content(testAssertSchema)
			if aDiags.HasErrors() {
				return nil, fmt.Errorf("%s: %s", path, aDiags.Error())
			}
			assert := testAssert{declRange: ab.DefRange}
			assert.condition = aContent.Attributes["condition"].Expr
			if attr, ok := aContent.Attributes["error_message"]; ok {
				val, valDiags := attr.Expr.Value(nil)
				if !valDiags.HasErrors() && val.Type() == cty.String {
					assert.errorMessage = val.AsString()
				}
			}
			tr.asserts = append(tr.asserts, assert)
		}
		runs = append(runs, tr)
	}
	return runs, nil
}
