// Package engine implements the reconciliation core: instance expansion,
// dependency graph construction, plan calculation and parallel execution.
package engine

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/lang"
	"github.com/floehq/floe/internal/logging"
	"github.com/floehq/floe/internal/provider"
)

// Engine plans and applies resource changes through registered providers.
type Engine struct {
	Registry    *provider.Registry
	Parallelism int
	Retry       *RetryPolicy
}

func New(registry *provider.Registry) *Engine {
	return &Engine{
		Registry:    registry,
		Parallelism: DefaultParallelism,
		Retry:       DefaultRetryPolicy(),
	}
}

// Plan computes the set of operations that would bring the recorded state in
// line with the configuration. Planning never mutates state and never calls
// a provider beyond loading it and reading its schema.
//
// The scope is updated as a side effect: every planned instance gets a value
// (unknown for create and replace, the merged prior value otherwise) so that
// downstream expressions evaluate consistently during the same run.
func (e *Engine) Plan(ctx context.Context, cfg *ir.Config, st *ir.State, scope *lang.Scope) (*ir.Plan, error) {
	expanded, err := Expand(cfg.Resources, scope)
	if err != nil {
		return nil, err
	}

	graph, err := BuildGraph(expanded)
	if err != nil {
		return nil, err
	}

	byAddr := make(map[string]*ir.Resource, len(expanded))
	for _, res := range expanded {
		byAddr[res.Addr()] = res
		if err := e.Registry.LoadProvider(res.Provider); err != nil {
			return nil, fmt.Errorf("%s: %w", res.Addr(), err)
		}
	}

	plan := &ir.Plan{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Summary:   &ir.PlanSummary{},
	}

	actions := make(map[string]ir.Action, len(expanded))
	var managed []*ir.Change

	for _, addr := range graph.CreationOrder() {
		res := byAddr[addr]
		desired, err := evalAttributes(res, scope)
		if err != nil {
			return nil, err
		}

		prior := st.Record(addr)
		change, err := e.diffInstance(res, prior, desired)
		if err != nil {
			return nil, err
		}
		change.AllDeps = graph.Dependencies(addr)
		actions[addr] = change.Action

		if err := updateScope(scope, res, prior, desired, change.Action); err != nil {
			return nil, err
		}

		countAction(plan.Summary, change.Action)
		if change.Action != ir.ActionNoop {
			managed = append(managed, change)
		}
		logging.Debug("planned instance", "address", addr, "action", string(change.Action))
	}

	// Requires only names changes that will actually execute; committed
	// dependencies impose no ordering.
	for _, change := range managed {
		for _, dep := range change.AllDeps {
			if a, ok := actions[dep]; ok && a != ir.ActionNoop {
				change.Requires = append(change.Requires, dep)
			}
		}
	}

	deletes, err := e.planDeletes(cfg, st, byAddr)
	if err != nil {
		return nil, err
	}
	plan.Summary.Delete += len(deletes)

	plan.Changes = append(plan.Changes, deletes...)
	plan.Changes = append(plan.Changes, managed...)
	return plan, nil
}

// PlanDestroy computes a plan that removes every recorded resource, in
// reverse dependency order.
func (e *Engine) PlanDestroy(ctx context.Context, cfg *ir.Config, st *ir.State) (*ir.Plan, error) {
	if cfg != nil {
		for _, rec := range st.Resources {
			if err := checkPreventDestroy(cfg, rec); err != nil {
				return nil, err
			}
		}
	}

	deletes, err := deleteChanges(st.Resources, st)
	if err != nil {
		return nil, err
	}
	for _, change := range deletes {
		if err := e.Registry.LoadProvider(change.Prior.Provider); err != nil {
			return nil, fmt.Errorf("%s: %w", change.Address, err)
		}
	}

	return &ir.Plan{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Changes:   deletes,
		Summary:   &ir.PlanSummary{Delete: len(deletes)},
	}, nil
}

// diffInstance decides the action for one instance and builds its
// attribute-level diff.
func (e *Engine) diffInstance(res *ir.Resource, prior *ir.Record, desired map[string]cty.Value) (*ir.Change, error) {
	change := &ir.Change{
		Address: res.Addr(),
		Desired: res,
		Prior:   prior,
		Diff:    make(map[string]*ir.AttrDiff),
	}

	if prior == nil {
		change.Action = ir.ActionCreate
		for attr, val := range desired {
			change.Diff[attr] = &ir.AttrDiff{
				After:  lang.CtyToDisplay(val),
				Action: ir.ActionCreate,
			}
		}
		return change, nil
	}

	p, err := e.Registry.Get(res.Provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", res.Addr(), err)
	}
	schema, err := p.Schema(res.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", res.Addr(), err)
	}

	ignored := make(map[string]bool)
	if res.Lifecycle != nil {
		for _, attr := range res.Lifecycle.IgnoreChanges {
			ignored[attr] = true
		}
	}

	forcesReplace := false
	for attr, val := range desired {
		if ignored[attr] {
			continue
		}
		priorVal, hadPrior := prior.Inputs[attr]

		if val.IsWhollyKnown() {
			desiredGo, err := lang.CtyToGo(val)
			if err != nil {
				return nil, fmt.Errorf("%s: attribute %q: %w", res.Addr(), attr, err)
			}
			if hadPrior && reflect.DeepEqual(normalize(desiredGo), normalize(priorVal)) {
				continue
			}
		}

		diff := &ir.AttrDiff{
			Before: priorVal,
			After:  lang.CtyToDisplay(val),
			Action: ir.ActionUpdate,
		}
		if schema.Immutable(attr) {
			diff.ForcesReplacement = true
			forcesReplace = true
		}
		change.Diff[attr] = diff
	}

	// Attributes dropped from configuration count as changes too.
	for attr, priorVal := range prior.Inputs {
		if _, stillSet := desired[attr]; stillSet || ignored[attr] {
			continue
		}
		diff := &ir.AttrDiff{
			Before: priorVal,
			Action: ir.ActionUpdate,
		}
		if schema.Immutable(attr) {
			diff.ForcesReplacement = true
			forcesReplace = true
		}
		change.Diff[attr] = diff
	}

	switch {
	case len(change.Diff) == 0:
		change.Action = ir.ActionNoop
	case forcesReplace:
		if res.Lifecycle != nil && res.Lifecycle.PreventDestroy {
			return nil, fmt.Errorf("%s: replacement required but prevent_destroy is set", res.Addr())
		}
		change.Action = ir.ActionReplace
	default:
		change.Action = ir.ActionUpdate
	}
	return change, nil
}

// planDeletes finds state records with no surviving declaration and orders
// their removal so dependents go before their dependencies.
func (e *Engine) planDeletes(cfg *ir.Config, st *ir.State, desired map[string]*ir.Resource) ([]*ir.Change, error) {
	var orphaned []*ir.Record
	for _, rec := range st.Resources {
		if _, exists := desired[rec.Addr()]; exists {
			continue
		}
		if err := checkPreventDestroy(cfg, rec); err != nil {
			return nil, err
		}
		orphaned = append(orphaned, rec)
	}
	if len(orphaned) == 0 {
		return nil, nil
	}
	return deleteChanges(orphaned, st)
}

// deleteChanges builds delete operations for the given records in reverse
// dependency order. A record may only be deleted once every recorded
// dependent in the set has been deleted.
func deleteChanges(records []*ir.Record, st *ir.State) ([]*ir.Change, error) {
	graph, err := BuildStateGraph(st.Resources)
	if err != nil {
		return nil, err
	}

	inSet := make(map[string]*ir.Record, len(records))
	for _, rec := range records {
		inSet[rec.Addr()] = rec
	}

	var changes []*ir.Change
	for _, addr := range graph.DestructionOrder() {
		rec, ok := inSet[addr]
		if !ok {
			continue
		}
		change := &ir.Change{
			Address: addr,
			Action:  ir.ActionDelete,
			Prior:   rec,
		}
		for _, dependent := range graph.Dependents(addr) {
			if _, deleting := inSet[dependent]; deleting {
				change.Requires = append(change.Requires, dependent)
			}
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func checkPreventDestroy(cfg *ir.Config, rec *ir.Record) error {
	base := ir.BaseAddrOf(rec.Addr())
	for _, res := range cfg.Resources {
		if res.BaseAddr() != base {
			continue
		}
		if res.Lifecycle != nil && res.Lifecycle.PreventDestroy {
			return fmt.Errorf("%s: resource is protected by prevent_destroy", rec.Addr())
		}
	}
	return nil
}

// evalAttributes evaluates every configured attribute of one instance.
// Values referencing not-yet-applied resources come back unknown.
func evalAttributes(res *ir.Resource, scope *lang.Scope) (map[string]cty.Value, error) {
	ctx := scope.InstanceContext(res)
	desired := make(map[string]cty.Value, len(res.Config))
	for attr, expr := range res.Config {
		val, diags := expr.Value(ctx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: evaluating %s: %s", res.Addr(), attr, diags.Error())
		}
		desired[attr] = val
	}
	return desired, nil
}

// updateScope records the planned value of one instance so later
// expressions see it.
func updateScope(scope *lang.Scope, res *ir.Resource, prior *ir.Record, desired map[string]cty.Value, action ir.Action) error {
	switch action {
	case ir.ActionCreate, ir.ActionReplace:
		scope.SetInstance(res.Type, res.Name, res.Key, cty.DynamicVal)
	case ir.ActionNoop:
		return scope.SetRecord(prior)
	case ir.ActionUpdate:
		attrs := make(map[string]cty.Value)
		for k, v := range prior.Inputs {
			cv, err := lang.GoToCty(v)
			if err != nil {
				return fmt.Errorf("%s: %w", res.Addr(), err)
			}
			attrs[k] = cv
		}
		for k, v := range prior.Outputs {
			cv, err := lang.GoToCty(v)
			if err != nil {
				return fmt.Errorf("%s: %w", res.Addr(), err)
			}
			attrs[k] = cv
		}
		for k, v := range desired {
			attrs[k] = v
		}
		scope.SetInstance(res.Type, res.Name, res.Key, cty.ObjectVal(attrs))
	}
	return nil
}

// normalize flattens integer-valued numbers so values decoded from JSON
// compare equal to freshly evaluated ones.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}

func countAction(s *ir.PlanSummary, a ir.Action) {
	switch a {
	case ir.ActionCreate:
		s.Create++
	case ir.ActionUpdate:
		s.Update++
	case ir.ActionReplace:
		s.Replace++
	case ir.ActionDelete:
		s.Delete++
	case ir.ActionNoop:
		s.NoOp++
	}
}
