// Package config parses a directory of declaration files into the in-memory
// configuration tree. Parsing and validation are pure: no provider is
// touched, and every problem found in one pass is collected before reporting.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/floehq/floe/internal/ir"
)

// ConfigSuffix is the extension of configuration files. Files within a
// directory are merged order-independently.
const ConfigSuffix = ".hcl"

// TestSuffix marks assertion files consumed by `floe test`, skipped here.
const TestSuffix = ".flt.hcl"

// VarsSuffix marks variable-assignment files, skipped here.
const VarsSuffix = ".vars.hcl"

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "variable", LabelNames: []string{"name"}},
		{Type: "resource", LabelNames: []string{"type", "name"}},
		{Type: "output", LabelNames: []string{"name"}},
	},
}

var resourceSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "provider"},
		{Name: "for_each"},
		{Name: "count"},
		{Name: "depends_on"},
		{Name: "timeout"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "lifecycle"},
	},
}

var lifecycleSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "create_before_destroy"},
		{Name: "prevent_destroy"},
		{Name: "ignore_changes"},
	},
}

var variableSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type"},
		{Name: "default"},
		{Name: "description"},
		{Name: "sensitive"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "validation"},
	},
}

var validationSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "condition"},
		{Name: "error_message"},
	},
}

var outputSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "value"},
		{Name: "description"},
		{Name: "sensitive"},
	},
}

// Loader parses declaration files into an ir.Config.
type Loader struct {
	parser *hclparse.Parser
}

func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// LoadDir parses every configuration file in dir and merges the declarations.
// The result is syntactically decoded but variables are not yet resolved;
// use ResolveVariables and CheckValidations before planning.
func (l *Loader) LoadDir(dir string) (*ir.Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ConfigSuffix) {
			continue
		}
		if strings.HasSuffix(name, TestSuffix) || strings.HasSuffix(name, VarsSuffix) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no configuration files (*%s) found in %s", ConfigSuffix, dir)
	}
	return l.LoadFiles(files)
}

// LoadFiles parses the given files and merges their declarations.
func (l *Loader) LoadFiles(paths []string) (*ir.Config, error) {
	cfg := &ir.Config{
		Variables: make(map[string]*ir.Variable),
		Outputs:   make(map[string]*ir.Output),
	}
	cerr := &ConfigError{}

	for _, path := range paths {
		file, diags := l.parser.ParseHCLFile(path)
		if diags.HasErrors() {
			cerr.appendDiags(diags)
			continue
		}
		l.decodeFile(file.Body, cfg, cerr)
	}

	if err := cerr.orNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) decodeFile(body hcl.Body, cfg *ir.Config, cerr *ConfigError) {
	content, diags := body.Content(rootSchema)
	cerr.appendDiags(diags)

	for _, block := range content.Blocks {
		switch block.Type {
		case "variable":
			l.decodeVariable(block, cfg, cerr)
		case "resource":
			l.decodeResource(block, cfg, cerr)
		case "output":
			l.decodeOutput(block, cfg, cerr)
		}
	}
}

func (l *Loader) decodeVariable(block *hcl.Block, cfg *ir.Config, cerr *ConfigError) {
	name := block.Labels[0]
	if _, exists := cfg.Variables[name]; exists {
		cerr.append(Issue{
			Summary: fmt.Sprintf("duplicate variable %q", name),
			Subject: &block.DefRange,
		})
		return
	}

	v := &ir.Variable{
		Name:      name,
		Type:      cty.DynamicPseudoType,
		DeclRange: block.DefRange,
	}

	content, diags := block.Body.Content(variableSchema)
	cerr.appendDiags(diags)

	if attr, ok := content.Attributes["type"]; ok {
		ty, def, tyDiags := typeexpr.TypeConstraintWithDefaults(attr.Expr)
		cerr.appendDiags(tyDiags)
		if !tyDiags.HasErrors() {
			v.Type = ty
			v.TypeDefaults = def
		}
	}
	if attr, ok := content.Attributes["description"]; ok {
		v.Description = literalString(attr, cerr)
	}
	if attr, ok := content.Attributes["sensitive"]; ok {
		v.Sensitive = literalBool(attr, cerr)
	}
	if attr, ok := content.Attributes["default"]; ok {
		val, valDiags := attr.Expr.Value(nil)
		cerr.appendDiags(valDiags)
		if !valDiags.HasErrors() {
			if v.TypeDefaults != nil {
				val = v.TypeDefaults.Apply(val)
			}
			v.HasDefault = true
			v.Default = val
		}
	}

	for _, vb := range content.Blocks {
		vContent, vDiags := vb.Body.Content(validationSchema)
		cerr.appendDiags(vDiags)

		validation := &ir.Validation{DeclRange: vb.DefRange}
		if attr, ok := vContent.Attributes["condition"]; ok {
			validation.Condition = attr.Expr
		} else {
			cerr.append(Issue{
				Summary: fmt.Sprintf("validation block for variable %q is missing a condition", name),
				Subject: &vb.DefRange,
			})
			continue
		}
		if attr, ok := vContent.Attributes["error_message"]; ok {
			validation.ErrorMessage = literalString(attr, cerr)
		}
		v.Validations = append(v.Validations, validation)
	}

	cfg.Variables[name] = v
}

func (l *Loader) decodeResource(block *hcl.Block, cfg *ir.Config, cerr *ConfigError) {
	typ, name := block.Labels[0], block.Labels[1]

	res := &ir.Resource{
		Type:      typ,
		Name:      name,
		Provider:  defaultProvider(typ),
		Key:       cty.NilVal,
		DeclRange: block.DefRange,
	}

	for _, existing := range cfg.Resources {
		if existing.Type == typ && existing.Name == name {
			cerr.append(Issue{
				Summary: fmt.Sprintf("duplicate resource %q", res.BaseAddr()),
				Subject: &block.DefRange,
			})
			return
		}
	}

	content, remain, diags := block.Body.PartialContent(resourceSchema)
	cerr.appendDiags(diags)

	if attr, ok := content.Attributes["provider"]; ok {
		res.Provider = literalString(attr, cerr)
	}
	if attr, ok := content.Attributes["timeout"]; ok {
		res.Timeout = literalString(attr, cerr)
	}
	if attr, ok := content.Attributes["for_each"]; ok {
		res.ForEach = attr.Expr
	}
	if attr, ok := content.Attributes["count"]; ok {
		res.Count = attr.Expr
	}
	if res.ForEach != nil && res.Count != nil {
		cerr.append(Issue{
			Summary: fmt.Sprintf("resource %q declares both for_each and count", res.BaseAddr()),
			Subject: &block.DefRange,
		})
	}
	if attr, ok := content.Attributes["depends_on"]; ok {
		res.DependsOn = decodeDependsOn(attr, cerr)
	}

	for _, lb := range content.Blocks {
		res.Lifecycle = decodeLifecycle(lb, cerr)
	}

	attrs, moreDiags := remain.JustAttributes()
	cerr.appendDiags(moreDiags)
	res.Config = make(map[string]hcl.Expression, len(attrs))
	for attrName, attr := range attrs {
		res.Config[attrName] = attr.Expr
	}

	cfg.Resources = append(cfg.Resources, res)
}

func (l *Loader) decodeOutput(block *hcl.Block, cfg *ir.Config, cerr *ConfigError) {
	name := block.Labels[0]
	if _, exists := cfg.Outputs[name]; exists {
		cerr.append(Issue{
			Summary: fmt.Sprintf("duplicate output %q", name),
			Subject: &block.DefRange,
		})
		return
	}

	out := &ir.Output{Name: name, DeclRange: block.DefRange}

	content, diags := block.Body.Content(outputSchema)
	cerr.appendDiags(diags)

	if attr, ok := content.Attributes["value"]; ok {
		out.Value = attr.Expr
	} else {
		cerr.append(Issue{
			Summary: fmt.Sprintf("output %q is missing a value", name),
			Subject: &block.DefRange,
		})
		return
	}
	if attr, ok := content.Attributes["sensitive"]; ok {
		out.Sensitive = literalBool(attr, cerr)
	}

	cfg.Outputs[name] = out
}

func decodeLifecycle(block *hcl.Block, cerr *ConfigError) *ir.Lifecycle {
	lc := &ir.Lifecycle{}
	content, diags := block.Body.Content(lifecycleSchema)
	cerr.appendDiags(diags)

	if attr, ok := content.Attributes["create_before_destroy"]; ok {
		lc.CreateBeforeDestroy = literalBool(attr, cerr)
	}
	if attr, ok := content.Attributes["prevent_destroy"]; ok {
		lc.PreventDestroy = literalBool(attr, cerr)
	}
	if attr, ok := content.Attributes["ignore_changes"]; ok {
		exprs, listDiags := hcl.ExprList(attr.Expr)
		cerr.appendDiags(listDiags)
		for _, e := range exprs {
			if trav, travDiags := hcl.AbsTraversalForExpr(e); !travDiags.HasErrors() {
				lc.IgnoreChanges = append(lc.IgnoreChanges, trav.RootName())
				continue
			}
			val, valDiags := e.Value(nil)
			if valDiags.HasErrors() || val.Type() != cty.String {
				cerr.append(Issue{
					Summary: "ignore_changes entries must be attribute names",
					Subject: e.Range().Ptr(),
				})
				continue
			}
			lc.IgnoreChanges = append(lc.IgnoreChanges, val.AsString())
		}
	}
	return lc
}

func decodeDependsOn(attr *hcl.Attribute, cerr *ConfigError) []string {
	exprs, diags := hcl.ExprList(attr.Expr)
	cerr.appendDiags(diags)

	var deps []string
	for _, e := range exprs {
		trav, travDiags := hcl.AbsTraversalForExpr(e)
		if travDiags.HasErrors() || len(trav) < 2 {
			cerr.append(Issue{
				Summary: "depends_on entries must be resource references of the form type.name",
				Subject: e.Range().Ptr(),
			})
			continue
		}
		nameStep, ok := trav[1].(hcl.TraverseAttr)
		if !ok {
			cerr.append(Issue{
				Summary: "depends_on entries must be resource references of the form type.name",
				Subject: e.Range().Ptr(),
			})
			continue
		}
		deps = append(deps, fmt.Sprintf("%s.%s", trav.RootName(), nameStep.Name))
	}
	return deps
}

// defaultProvider infers the provider name from a resource type's prefix,
// e.g. "aws_cognito_user_pool" -> "aws".
func defaultProvider(resourceType string) string {
	if i := strings.IndexByte(resourceType, '_'); i > 0 {
		return resourceType[:i]
	}
	return resourceType
}

func literalString(attr *hcl.Attribute, cerr *ConfigError) string {
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		cerr.appendDiags(diags)
		return ""
	}
	if val.Type() != cty.String {
		cerr.append(Issue{
			Summary: fmt.Sprintf("%s must be a string", attr.Name),
			Subject: attr.Range.Ptr(),
		})
		return ""
	}
	return val.AsString()
}

func literalBool(attr *hcl.Attribute, cerr *ConfigError) bool {
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		cerr.appendDiags(diags)
		return false
	}
	if val.Type() != cty.Bool {
		cerr.append(Issue{
			Summary: fmt.Sprintf("%s must be a bool", attr.Name),
			Subject: attr.Range.Ptr(),
		})
		return false
	}
	return val.True()
}
