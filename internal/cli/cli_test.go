package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floehq/floe/internal/config"
	"github.com/floehq/floe/internal/engine"
	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/lang"

	_ "github.com/floehq/floe/providers/null"
)

func TestColorize(t *testing.T) {
	// When noColor is false, colorize should return the code
	noColor = false
	assert.Equal(t, "\033[31m", colorize("\033[31m"))

	// When noColor is true, colorize should return empty string
	noColor = true
	assert.Equal(t, "", colorize("\033[31m"))

	// Reset
	noColor = false
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{
			name:     "nil",
			input:    nil,
			expected: "null",
		},
		{
			name:     "string is quoted",
			input:    "web",
			expected: `"web"`,
		},
		{
			name:     "unknown placeholder stays bare",
			input:    lang.UnknownPlaceholder,
			expected: lang.UnknownPlaceholder,
		},
		{
			name:     "number",
			input:    float64(3),
			expected: "3",
		},
		{
			name:     "bool",
			input:    true,
			expected: "true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatValue(tt.input))
		})
	}
}

func TestActionSymbol(t *testing.T) {
	assert.Equal(t, "+", actionSymbol(ir.ActionCreate))
	assert.Equal(t, "~", actionSymbol(ir.ActionUpdate))
	assert.Equal(t, "-/+", actionSymbol(ir.ActionReplace))
	assert.Equal(t, "-", actionSymbol(ir.ActionDelete))
}

func TestActionVerb(t *testing.T) {
	assert.Equal(t, "created", actionVerb(ir.ActionCreate))
	assert.Equal(t, "updated in-place", actionVerb(ir.ActionUpdate))
	assert.Equal(t, "replaced", actionVerb(ir.ActionReplace))
	assert.Equal(t, "destroyed", actionVerb(ir.ActionDelete))
}

func TestResolveDir(t *testing.T) {
	dir := t.TempDir()

	resolved, err := resolveDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, resolved)

	// A file is not a configuration directory
	file := filepath.Join(dir, "main.hcl")
	require.NoError(t, os.WriteFile(file, []byte(""), 0o644))
	_, err = resolveDir([]string{file})
	assert.ErrorContains(t, err, "not a directory")

	// A missing path is an error
	_, err = resolveDir([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestOpenBackendResolvesLocalPath(t *testing.T) {
	dir := t.TempDir()

	backend, err := openBackend(dir)
	require.NoError(t, err)

	st := ir.NewState()
	require.NoError(t, backend.Write(context.Background(), st))

	// The default --state path is relative to the configuration directory
	_, err = os.Stat(filepath.Join(dir, ".floe", "state.json"))
	assert.NoError(t, err)
}

func TestResolveValuesPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.hcl", `
variable "env" {
  type    = string
  default = "dev"
}
`)
	writeTestFile(t, dir, "auto.vars.hcl", `env = "staging"`)

	cfg, err := config.NewLoader().LoadDir(dir)
	require.NoError(t, err)

	// The auto-loaded vars file overrides the default
	values, err := resolveValues(cfg, dir)
	require.NoError(t, err)
	assert.Equal(t, "staging", values["env"].AsString())

	// An explicit --var flag overrides the vars file
	varFlags = []string{"env=prod"}
	defer func() { varFlags = nil }()

	values, err = resolveValues(cfg, dir)
	require.NoError(t, err)
	assert.Equal(t, "prod", values["env"].AsString())
}

func TestParseTestFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "pool.flt.hcl", `
run "plans cleanly" {
  assert {
    condition     = var.env == "dev"
    error_message = "unexpected environment"
  }
}

run "creates the resource" {
  command = "apply"

  assert {
    condition = null_resource.example.id != ""
  }
  assert {
    condition = null_resource.example.triggers.env == var.env
  }
}
`)

	runs, err := parseTestFile(path)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "plans cleanly", runs[0].name)
	assert.Equal(t, "plan", runs[0].command)
	require.Len(t, runs[0].asserts, 1)
	assert.Equal(t, "unexpected environment", runs[0].asserts[0].errorMessage)

	assert.Equal(t, "creates the resource", runs[1].name)
	assert.Equal(t, "apply", runs[1].command)
	assert.Len(t, runs[1].asserts, 2)
}

func TestParseTestFileRejectsBadCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "bad.flt.hcl", `
run "broken" {
  command = "destroy"
  assert {
    condition = true
  }
}
`)

	_, err := parseTestFile(path)
	assert.ErrorContains(t, err, `command must be "plan" or "apply"`)
}

func TestPlanApplyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.hcl", `
variable "env" {
  type    = string
  default = "dev"
}

resource "null_resource" "base" {
  triggers = {
    env = var.env
  }
}

resource "null_resource" "dependent" {
  triggers = {
    base_id = null_resource.base.id
  }
}

output "base_id" {
  value = null_resource.base.id
}
`)

	ctx := context.Background()

	r, err := newRun(ctx, []string{dir})
	require.NoError(t, err)

	plan, err := r.eng.Plan(ctx, r.cfg, r.st, r.scope)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 2)
	assert.Equal(t, ir.ActionCreate, plan.Changes[0].Action)
	assert.Equal(t, "null_resource.base", plan.Changes[0].Address)
	assert.Equal(t, "null_resource.dependent", plan.Changes[1].Address)

	persist := func(st *ir.State) error {
		return r.backend.Write(ctx, st)
	}
	_, err = r.eng.Apply(ctx, plan, r.st, r.scope, persist, nil)
	require.NoError(t, err)

	rec := r.st.Record("null_resource.dependent")
	require.NotNil(t, rec)
	triggers, ok := rec.Inputs["triggers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "null-base", triggers["base_id"])

	// A fresh run against the persisted state plans no changes
	r2, err := newRun(ctx, []string{dir})
	require.NoError(t, err)
	plan2, err := r2.eng.Plan(ctx, r2.cfg, r2.st, r2.scope)
	require.NoError(t, err)
	assert.True(t, plan2.Empty())
	assert.Equal(t, 2, plan2.Summary.NoOp)
}

func TestRefreshOutputs_EmptyPlan(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "main.hcl", `
resource "null_resource" "base" {
  triggers = {
    env = "dev"
  }
}

output "release" {
  value = "v1"
}
`)

	ctx := context.Background()

	r, err := newRun(ctx, []string{dir})
	require.NoError(t, err)
	plan, err := r.eng.Plan(ctx, r.cfg, r.st, r.scope)
	require.NoError(t, err)
	persist := func(st *ir.State) error {
		return r.backend.Write(ctx, st)
	}
	report, err := r.eng.Apply(ctx, plan, r.st, r.scope, persist, nil)
	require.NoError(t, err)
	_, err = refreshOutputs(ctx, r, report)
	require.NoError(t, err)

	// Change only the output definition; the plan is now empty but the
	// stored outputs must still track the configuration.
	writeTestFile(t, dir, "main.hcl", `
resource "null_resource" "base" {
  triggers = {
    env = "dev"
  }
}

output "release" {
  value = "v2"
}
`)

	r2, err := newRun(ctx, []string{dir})
	require.NoError(t, err)
	plan2, err := r2.eng.Plan(ctx, r2.cfg, r2.st, r2.scope)
	require.NoError(t, err)
	require.True(t, plan2.Empty())
	assert.Equal(t, "v1", r2.st.Outputs["release"])

	projected, err := refreshOutputs(ctx, r2, &engine.ApplyReport{})
	require.NoError(t, err)
	require.Contains(t, projected, "release")
	assert.Equal(t, "v2", r2.st.Outputs["release"])

	// The refreshed outputs were persisted, not just held in memory.
	stored, err := r2.backend.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.Outputs["release"])
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
