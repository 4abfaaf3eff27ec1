package ir

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Resource represents a single managed resource declaration.
//
// Input attributes are kept as unevaluated expressions so the engine can
// extract references statically and substitute real values only once the
// producing resources have been applied.
type Resource struct {
	Type      string // e.g. "aws_cognito_user_pool"
	Name      string
	Provider  string
	Lifecycle *Lifecycle
	DependsOn []string
	Timeout   string

	// Config maps attribute names to their declared expressions.
	Config map[string]hcl.Expression

	// ForEach and Count hold the declared multiplication expressions, if any.
	// They are consumed by expansion and nil afterwards.
	ForEach hcl.Expression
	Count   hcl.Expression

	// Key identifies one expanded instance: a string for for_each, a number
	// for count, cty.NilVal for a singular resource.
	Key cty.Value
	// EachValue carries the for_each element for this instance.
	EachValue cty.Value

	DeclRange hcl.Range
}

type Lifecycle struct {
	CreateBeforeDestroy bool
	PreventDestroy      bool
	IgnoreChanges       []string
}

// Addr returns the unique address of this resource instance.
func (r *Resource) Addr() string {
	return FormatAddr(r.Type, r.Name, r.Key)
}

// BaseAddr returns the address of the declaration, without any instance key.
func (r *Resource) BaseAddr() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}

// FormatAddr renders a resource address from its parts. key may be a cty
// string (for_each), a cty number (count) or cty.NilVal.
func FormatAddr(typ, name string, key cty.Value) string {
	base := fmt.Sprintf("%s.%s", typ, name)
	switch {
	case key == cty.NilVal || key.IsNull():
		return base
	case key.Type() == cty.String:
		return fmt.Sprintf("%s[%q]", base, key.AsString())
	case key.Type() == cty.Number:
		i, _ := key.AsBigFloat().Int64()
		return fmt.Sprintf("%s[%d]", base, i)
	default:
		return base
	}
}

// BaseAddrOf strips the instance key from an address.
func BaseAddrOf(addr string) string {
	if i := strings.IndexByte(addr, '['); i >= 0 {
		return addr[:i]
	}
	return addr
}
