package engine

import (
	"fmt"
	"sort"

	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/lang"
)

// OutputValue is one projected root output.
type OutputValue struct {
	Value     any
	Sensitive bool

	// Unavailable marks an output whose expression reads a resource that
	// failed or was skipped during the run.
	Unavailable bool
}

// ProjectOutputs evaluates the configuration's output expressions against
// the post-run scope. Outputs depending on an unhealthy resource are marked
// unavailable instead of failing the whole projection; report may be nil
// when every operation committed.
func ProjectOutputs(cfg *ir.Config, scope *lang.Scope, report *ApplyReport) (map[string]*OutputValue, error) {
	unhealthyBases := make(map[string]bool)
	if report != nil {
		for addr := range report.Unhealthy() {
			unhealthyBases[ir.BaseAddrOf(addr)] = true
		}
	}

	typeSet := make(map[string]bool)
	for _, res := range cfg.Resources {
		typeSet[res.Type] = true
	}

	ctx := scope.EvalContext()
	projected := make(map[string]*OutputValue, len(cfg.Outputs))

	names := make([]string, 0, len(cfg.Outputs))
	for name := range cfg.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		out := cfg.Outputs[name]
		projected[name] = &OutputValue{Sensitive: out.Sensitive}

		tainted := false
		for _, base := range referencedResources(out.Value, typeSet) {
			if unhealthyBases[base] {
				tainted = true
				break
			}
		}
		if tainted {
			projected[name].Unavailable = true
			continue
		}

		val, diags := out.Value.Value(ctx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("output %q: %s", name, diags.Error())
		}
		if !val.IsWhollyKnown() {
			projected[name].Unavailable = true
			continue
		}
		gv, err := lang.CtyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", name, err)
		}
		projected[name].Value = gv
	}

	return projected, nil
}

// StateOutputs flattens projected outputs for persistence. Unavailable
// outputs are dropped rather than recorded with a stale value.
func StateOutputs(projected map[string]*OutputValue) map[string]any {
	out := make(map[string]any, len(projected))
	for name, val := range projected {
		if val.Unavailable {
			continue
		}
		out[name] = val.Value
	}
	return out
}
