package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/lang"
)

// ResolveVariables merges assignments with declared defaults and checks each
// value against its declared type constraint. Required variables without an
// assignment, unknown assignments and type mismatches are all collected
// before reporting.
func ResolveVariables(cfg *ir.Config, assignments map[string]cty.Value) (map[string]cty.Value, error) {
	cerr := &ConfigError{}
	resolved := make(map[string]cty.Value, len(cfg.Variables))

	for name := range assignments {
		if _, declared := cfg.Variables[name]; !declared {
			cerr.append(Issue{
				Summary: fmt.Sprintf("value provided for undeclared variable %q", name),
			})
		}
	}

	names := make([]string, 0, len(cfg.Variables))
	for name := range cfg.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		decl := cfg.Variables[name]

		val, assigned := assignments[name]
		switch {
		case assigned:
			// fallthrough to conversion below
		case decl.HasDefault:
			val = decl.Default
		default:
			cerr.append(Issue{
				Summary: fmt.Sprintf("required variable %q is not set", name),
				Subject: &decl.DeclRange,
			})
			continue
		}

		if assigned && decl.TypeDefaults != nil {
			val = decl.TypeDefaults.Apply(val)
		}
		converted, err := convert.Convert(val, decl.Type)
		if err != nil {
			cerr.append(Issue{
				Summary: fmt.Sprintf("invalid value for variable %q", name),
				Detail:  err.Error(),
				Subject: &decl.DeclRange,
			})
			continue
		}
		resolved[name] = converted
	}

	if err := cerr.orNil(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// CheckValidations evaluates every validation predicate of every variable.
// All predicates are evaluated and all failures collected in one pass, so a
// user fixes many issues in one iteration. Any violation is fatal before
// planning proceeds.
func CheckValidations(cfg *ir.Config, values map[string]cty.Value) error {
	cerr := &ConfigError{}

	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(values)},
		Functions: lang.Functions(),
	}

	names := make([]string, 0, len(cfg.Variables))
	for name := range cfg.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		decl := cfg.Variables[name]
		if _, ok := values[name]; !ok {
			continue
		}
		for _, validation := range decl.Validations {
			result, diags := validation.Condition.Value(ctx)
			if diags.HasErrors() {
				cerr.append(Issue{
					Summary: fmt.Sprintf("validation condition for variable %q failed to evaluate", name),
					Detail:  diags.Error(),
					Subject: &validation.DeclRange,
				})
				continue
			}
			result, err := convert.Convert(result, cty.Bool)
			if err != nil || result.IsNull() {
				cerr.append(Issue{
					Summary: fmt.Sprintf("validation condition for variable %q must produce a bool", name),
					Subject: &validation.DeclRange,
				})
				continue
			}
			if result.False() {
				cerr.append(Issue{
					Summary: fmt.Sprintf("invalid value for variable %q", name),
					Detail:  validation.ErrorMessage,
					Subject: &validation.DeclRange,
				})
			}
		}
	}

	return cerr.orNil()
}

// ParseVarsFile reads a *.vars.hcl file of name = value assignments.
func ParseVarsFile(path string) (map[string]cty.Value, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		cerr := &ConfigError{}
		cerr.appendDiags(diags)
		return nil, cerr
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		cerr := &ConfigError{}
		cerr.appendDiags(diags)
		return nil, cerr
	}

	vals := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, valDiags := attr.Expr.Value(nil)
		if valDiags.HasErrors() {
			cerr := &ConfigError{}
			cerr.appendDiags(valDiags)
			return nil, cerr
		}
		vals[name] = val
	}
	return vals, nil
}

// ParseVarFlag parses one --var NAME=VALUE flag. The value is parsed as an
// HCL expression; a value that is not valid HCL is taken as a raw string.
func ParseVarFlag(raw string) (string, cty.Value, error) {
	name, valueSrc, ok := strings.Cut(raw, "=")
	if !ok {
		return "", cty.NilVal, fmt.Errorf("invalid variable flag %q: expected NAME=VALUE", raw)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", cty.NilVal, fmt.Errorf("invalid variable flag %q: empty name", raw)
	}

	expr, diags := hclsyntax.ParseExpression([]byte(valueSrc), "<var flag>", hcl.InitialPos)
	if !diags.HasErrors() {
		if val, valDiags := expr.Value(nil); !valDiags.HasErrors() {
			return name, val, nil
		}
	}
	return name, cty.StringVal(valueSrc), nil
}
