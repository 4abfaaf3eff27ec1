package ir

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/zclconf/go-cty/cty"
)

// Config represents the top-level validated configuration.
type Config struct {
	Resources []*Resource
	Variables map[string]*Variable
	Outputs   map[string]*Output
}

// Variable is a declared input to the configuration.
type Variable struct {
	Name        string
	Description string
	Type        cty.Type
	// TypeDefaults carries per-attribute defaults from optional(...) markers
	// in the type constraint; applied to every assigned value.
	TypeDefaults *typeexpr.Defaults
	HasDefault   bool
	Default      cty.Value
	Sensitive    bool
	Validations  []*Validation
	DeclRange    hcl.Range
}

// Validation is one boolean predicate over a variable's value, paired with
// the message reported when it fails.
type Validation struct {
	Condition    hcl.Expression
	ErrorMessage string
	DeclRange    hcl.Range
}

// Output is a named expression evaluated against final state after apply.
type Output struct {
	Name      string
	Value     hcl.Expression
	Sensitive bool
	DeclRange hcl.Range
}
