package engine

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/lang"
)

// Expand replaces every resource carrying for_each or count with one
// independent instance per element. Expansion arguments must be wholly
// known at plan time; an unknown for_each or count is an error.
func Expand(resources []*ir.Resource, scope *lang.Scope) ([]*ir.Resource, error) {
	ctx := scope.EvalContext()

	var expanded []*ir.Resource
	for _, res := range resources {
		switch {
		case res.ForEach != nil:
			instances, err := expandForEach(res, ctx)
			if err != nil {
				return nil, err
			}
			expanded = append(expanded, instances...)
		case res.Count != nil:
			instances, err := expandCount(res, ctx)
			if err != nil {
				return nil, err
			}
			expanded = append(expanded, instances...)
		default:
			expanded = append(expanded, res)
		}
	}
	return expanded, nil
}

func expandForEach(res *ir.Resource, ctx *hcl.EvalContext) ([]*ir.Resource, error) {
	val, diags := res.ForEach.Value(ctx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: evaluating for_each: %s", res.BaseAddr(), diags.Error())
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("%s: for_each value must be known at plan time", res.BaseAddr())
	}
	if val.IsNull() {
		return nil, fmt.Errorf("%s: for_each value must not be null", res.BaseAddr())
	}

	ty := val.Type()
	var instances []*ir.Resource
	switch {
	case ty.IsMapType() || ty.IsObjectType():
		elems := val.AsValueMap()
		keys := make([]string, 0, len(elems))
		for k := range elems {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			instances = append(instances, instanceOf(res, cty.StringVal(k), elems[k]))
		}
	case ty.IsSetType():
		elems := make(map[string]cty.Value)
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			str, err := convert.Convert(elem, cty.String)
			if err != nil {
				return nil, fmt.Errorf("%s: for_each set elements must be strings", res.BaseAddr())
			}
			if _, dup := elems[str.AsString()]; dup {
				return nil, fmt.Errorf("%s: duplicate for_each key %q", res.BaseAddr(), str.AsString())
			}
			elems[str.AsString()] = elem
		}
		keys := make([]string, 0, len(elems))
		for k := range elems {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			instances = append(instances, instanceOf(res, cty.StringVal(k), elems[k]))
		}
	default:
		return nil, fmt.Errorf("%s: for_each must be a map or a set of strings, not %s", res.BaseAddr(), ty.FriendlyName())
	}
	return instances, nil
}

func expandCount(res *ir.Resource, ctx *hcl.EvalContext) ([]*ir.Resource, error) {
	val, diags := res.Count.Value(ctx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: evaluating count: %s", res.BaseAddr(), diags.Error())
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("%s: count value must be known at plan time", res.BaseAddr())
	}
	num, err := convert.Convert(val, cty.Number)
	if err != nil || num.IsNull() {
		return nil, fmt.Errorf("%s: count must be a whole number", res.BaseAddr())
	}
	n, _ := num.AsBigFloat().Int64()
	if n < 0 {
		return nil, fmt.Errorf("%s: count must not be negative", res.BaseAddr())
	}

	instances := make([]*ir.Resource, 0, n)
	for i := int64(0); i < n; i++ {
		key := cty.NumberIntVal(i)
		instances = append(instances, instanceOf(res, key, key))
	}
	return instances, nil
}

// instanceOf clones res as a single keyed instance. The attribute
// expression map is shared; only identity fields differ.
func instanceOf(res *ir.Resource, key, eachValue cty.Value) *ir.Resource {
	clone := *res
	clone.ForEach = nil
	clone.Count = nil
	clone.Key = key
	clone.EachValue = eachValue
	return &clone
}
