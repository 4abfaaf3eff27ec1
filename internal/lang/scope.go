// Package lang builds the expression evaluation scope shared by the planner,
// the executor and the output projector.
//
// Reference resolution is two-phase: the graph builder extracts references
// statically from expressions, and values are substituted here only once the
// producing resource's real outputs are known. Instances of a resource that
// has not been applied yet appear as unknown values, so any expression
// reading them evaluates to unknown rather than failing.
package lang

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/floehq/floe/internal/ir"
)

// Scope holds variable values and per-instance resource values.
type Scope struct {
	mu        sync.RWMutex
	variables map[string]cty.Value
	resources map[string]map[string]*instanceSet // type -> name -> instances
}

type instanceSet struct {
	single  cty.Value
	keyed   map[string]cty.Value
	indexed map[int]cty.Value
}

func NewScope(variables map[string]cty.Value) *Scope {
	if variables == nil {
		variables = map[string]cty.Value{}
	}
	return &Scope{
		variables: variables,
		resources: make(map[string]map[string]*instanceSet),
	}
}

// SetInstance records the value of one resource instance. key follows the
// ir.Resource.Key convention (string, number or cty.NilVal).
func (s *Scope) SetInstance(typ, name string, key cty.Value, val cty.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName := s.resources[typ]
	if byName == nil {
		byName = make(map[string]*instanceSet)
		s.resources[typ] = byName
	}
	set := byName[name]
	if set == nil {
		set = &instanceSet{}
		byName[name] = set
	}

	switch {
	case key == cty.NilVal || key.IsNull():
		set.single = val
	case key.Type() == cty.String:
		if set.keyed == nil {
			set.keyed = make(map[string]cty.Value)
		}
		set.keyed[key.AsString()] = val
	case key.Type() == cty.Number:
		if set.indexed == nil {
			set.indexed = make(map[int]cty.Value)
		}
		i, _ := key.AsBigFloat().Int64()
		set.indexed[int(i)] = val
	}
}

// SetRecord loads one state record into the scope, merging inputs with the
// provider-returned outputs (outputs win on conflict).
func (s *Scope) SetRecord(rec *ir.Record) error {
	merged := make(map[string]any, len(rec.Inputs)+len(rec.Outputs))
	for k, v := range rec.Inputs {
		merged[k] = v
	}
	for k, v := range rec.Outputs {
		merged[k] = v
	}
	val, err := GoToCty(merged)
	if err != nil {
		return fmt.Errorf("invalid state value for %s: %w", rec.Addr(), err)
	}
	s.SetInstance(rec.Type, rec.Name, rec.KeyValue(), val)
	return nil
}

func (set *instanceSet) value() cty.Value {
	switch {
	case set.keyed != nil:
		attrs := make(map[string]cty.Value, len(set.keyed))
		for k, v := range set.keyed {
			attrs[k] = v
		}
		return cty.ObjectVal(attrs)
	case set.indexed != nil:
		idxs := make([]int, 0, len(set.indexed))
		for i := range set.indexed {
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)
		vals := make([]cty.Value, 0, len(idxs))
		for _, i := range idxs {
			vals = append(vals, set.indexed[i])
		}
		return cty.TupleVal(vals)
	default:
		return set.single
	}
}

// EvalContext returns the root evaluation context: var.*, one root per
// resource type, and the function table.
func (s *Scope) EvalContext() *hcl.EvalContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vars := map[string]cty.Value{
		"var": cty.ObjectVal(s.variables),
	}
	for typ, byName := range s.resources {
		names := make(map[string]cty.Value, len(byName))
		for name, set := range byName {
			names[name] = set.value()
		}
		vars[typ] = cty.ObjectVal(names)
	}

	return &hcl.EvalContext{
		Variables: vars,
		Functions: Functions(),
	}
}

// InstanceContext returns a child context carrying each.* and count.index
// for one expanded resource instance.
func (s *Scope) InstanceContext(res *ir.Resource) *hcl.EvalContext {
	ctx := s.EvalContext()
	if res.Key == cty.NilVal || res.Key.IsNull() {
		return ctx
	}

	child := ctx.NewChild()
	child.Variables = map[string]cty.Value{}
	switch res.Key.Type() {
	case cty.String:
		child.Variables["each"] = cty.ObjectVal(map[string]cty.Value{
			"key":   res.Key,
			"value": res.EachValue,
		})
	case cty.Number:
		child.Variables["count"] = cty.ObjectVal(map[string]cty.Value{
			"index": res.Key,
		})
	}
	return child
}
