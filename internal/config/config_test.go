package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/floehq/floe/internal/ir"
)

func writeConfig(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadDirMergesAndSkipsSpecialFiles(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "variables.hcl", `
variable "env" {
  type    = string
  default = "dev"
}
`)
	writeConfig(t, dir, "main.hcl", `
resource "null_resource" "a" {
  triggers = { env = var.env }
}
`)
	writeConfig(t, dir, "prod.vars.hcl", `env = "prod"`)
	writeConfig(t, dir, "main.flt.hcl", `run "x" { assert { condition = true } }`)

	cfg, err := NewLoader().LoadDir(dir)
	require.NoError(t, err)

	assert.Len(t, cfg.Variables, 1)
	assert.Len(t, cfg.Resources, 1)
	assert.Empty(t, cfg.Outputs)
}

func TestLoadDirEmpty(t *testing.T) {
	_, err := NewLoader().LoadDir(t.TempDir())
	assert.ErrorContains(t, err, "no configuration files")
}

func TestProviderInference(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "main.hcl", `
resource "aws_cognito_user_pool" "a" {
  pool_name = "a"
}

resource "null_resource" "b" {}

resource "aws_kms_key" "c" {
  provider = "awsgov"
}
`)

	cfg, err := NewLoader().LoadFiles([]string{path})
	require.NoError(t, err)
	require.Len(t, cfg.Resources, 3)

	assert.Equal(t, "aws", cfg.Resources[0].Provider)
	assert.Equal(t, "null", cfg.Resources[1].Provider)
	// An explicit provider attribute overrides the type prefix
	assert.Equal(t, "awsgov", cfg.Resources[2].Provider)
}

func TestDuplicateDeclarations(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "main.hcl", `
resource "null_resource" "a" {}
resource "null_resource" "a" {}

variable "env" {}
variable "env" {}
`)

	_, err := NewLoader().LoadFiles([]string{path})
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorContains(t, err, `duplicate resource "null_resource.a"`)
	assert.ErrorContains(t, err, `duplicate variable "env"`)
}

func TestForEachAndCountAreExclusive(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "main.hcl", `
resource "null_resource" "a" {
  for_each = { x = 1 }
  count    = 2
}
`)

	_, err := NewLoader().LoadFiles([]string{path})
	assert.ErrorContains(t, err, "declares both for_each and count")
}

func TestLifecycleAndReservedAttributes(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "main.hcl", `
resource "aws_kms_key" "a" {
  description = "key"
  timeout     = "5m"

  depends_on = [null_resource.base]

  lifecycle {
    create_before_destroy = true
    prevent_destroy       = true
    ignore_changes        = [tags]
  }
}
`)

	cfg, err := NewLoader().LoadFiles([]string{path})
	require.NoError(t, err)
	res := cfg.Resources[0]

	assert.Equal(t, "5m", res.Timeout)
	assert.Equal(t, []string{"null_resource.base"}, res.DependsOn)
	require.NotNil(t, res.Lifecycle)
	assert.True(t, res.Lifecycle.CreateBeforeDestroy)
	assert.True(t, res.Lifecycle.PreventDestroy)
	assert.Equal(t, []string{"tags"}, res.Lifecycle.IgnoreChanges)

	// Reserved attributes do not leak into the resource's inputs
	_, hasTimeout := res.Config["timeout"]
	assert.False(t, hasTimeout)
	_, hasDescription := res.Config["description"]
	assert.True(t, hasDescription)
}

func TestDependsOnRejectsNonReference(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "main.hcl", `
resource "null_resource" "a" {
  depends_on = ["null_resource.base"]
}
`)

	_, err := NewLoader().LoadFiles([]string{path})
	assert.ErrorContains(t, err, "depends_on entries must be resource references")
}

func TestOutputRequiresValue(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "main.hcl", `
output "broken" {
  sensitive = true
}
`)

	_, err := NewLoader().LoadFiles([]string{path})
	assert.ErrorContains(t, err, `output "broken" is missing a value`)
}

func loadVariables(t *testing.T, src string) *ir.Config {
	t.Helper()
	dir := t.TempDir()
	path := writeConfig(t, dir, "main.hcl", src)
	cfg, err := NewLoader().LoadFiles([]string{path})
	require.NoError(t, err)
	return cfg
}

func TestResolveVariablesDefaultsAndOverrides(t *testing.T) {
	cfg := loadVariables(t, `
variable "env" {
  type    = string
  default = "dev"
}

variable "replicas" {
  type    = number
  default = 1
}
`)

	values, err := ResolveVariables(cfg, map[string]cty.Value{
		"replicas": cty.NumberIntVal(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "dev", values["env"].AsString())
	assert.True(t, values["replicas"].RawEquals(cty.NumberIntVal(3)))
}

func TestResolveVariablesCollectsAllIssues(t *testing.T) {
	cfg := loadVariables(t, `
variable "name" {
  type = string
}

variable "replicas" {
  type = number
}
`)

	_, err := ResolveVariables(cfg, map[string]cty.Value{
		"replicas": cty.StringVal("many"),
		"unknown":  cty.StringVal("x"),
	})
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorContains(t, err, `required variable "name" is not set`)
	assert.ErrorContains(t, err, `invalid value for variable "replicas"`)
	assert.ErrorContains(t, err, `undeclared variable "unknown"`)
}

func TestResolveVariablesObjectDefaults(t *testing.T) {
	cfg := loadVariables(t, `
variable "clients" {
  type = map(object({
    url     = string
    retries = optional(number, 3)
  }))
  default = {}
}
`)

	values, err := ResolveVariables(cfg, map[string]cty.Value{
		"clients": cty.ObjectVal(map[string]cty.Value{
			"web": cty.ObjectVal(map[string]cty.Value{
				"url": cty.StringVal("https://example.com"),
			}),
		}),
	})
	require.NoError(t, err)

	web := values["clients"].Index(cty.StringVal("web"))
	assert.True(t, web.GetAttr("retries").RawEquals(cty.NumberIntVal(3)))
}

func TestCheckValidationsCollectsAllFailures(t *testing.T) {
	cfg := loadVariables(t, `
variable "name" {
  type = string

  validation {
    condition     = length(var.name) >= 3
    error_message = "name must be at least 3 characters"
  }
}

variable "env" {
  type = string

  validation {
    condition     = contains(["dev", "prod"], var.env)
    error_message = "env must be dev or prod"
  }
}
`)

	values, err := ResolveVariables(cfg, map[string]cty.Value{
		"name": cty.StringVal("ab"),
		"env":  cty.StringVal("qa"),
	})
	require.NoError(t, err)

	err = CheckValidations(cfg, values)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, cerr.Issues, 2)
	assert.ErrorContains(t, err, "name must be at least 3 characters")
	assert.ErrorContains(t, err, "env must be dev or prod")
}

func TestCheckValidationsPass(t *testing.T) {
	cfg := loadVariables(t, `
variable "name" {
  type = string

  validation {
    condition     = length(var.name) >= 3
    error_message = "too short"
  }
}
`)

	values, err := ResolveVariables(cfg, map[string]cty.Value{
		"name": cty.StringVal("abc"),
	})
	require.NoError(t, err)
	assert.NoError(t, CheckValidations(cfg, values))
}

func TestParseVarsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "prod.vars.hcl", `
env      = "prod"
replicas = 3
regions  = ["eu-central-1", "eu-west-1"]
`)

	vals, err := ParseVarsFile(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", vals["env"].AsString())
	assert.True(t, vals["replicas"].RawEquals(cty.NumberIntVal(3)))
	assert.Equal(t, 2, vals["regions"].LengthInt())
}

func TestParseVarFlag(t *testing.T) {
	tests := []struct {
		raw      string
		name     string
		expected cty.Value
	}{
		{`env=prod`, "env", cty.StringVal("prod")},
		{`env="prod"`, "env", cty.StringVal("prod")},
		{`replicas=3`, "replicas", cty.NumberIntVal(3)},
		{`enabled=true`, "enabled", cty.True},
		{`regions=["a","b"]`, "regions", cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")})},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			name, val, err := ParseVarFlag(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.True(t, val.RawEquals(tt.expected), "got %#v", val)
		})
	}

	_, _, err := ParseVarFlag("no-equals")
	assert.ErrorContains(t, err, "expected NAME=VALUE")
}
