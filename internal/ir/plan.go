package ir

// Action describes what the executor will do with one resource instance.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionDelete  Action = "delete"
	ActionNoop    Action = "noop"
)

// Plan represents a calculated execution plan.
type Plan struct {
	Timestamp string
	Changes   []*Change
	Summary   *PlanSummary
}

// Change is one planned operation bound to one resource instance. Changes are
// listed in dependency order; Requires names the changes that must commit
// before this one may start.
type Change struct {
	Address  string
	Action   Action
	Desired  *Resource // nil for delete
	Prior    *Record   // nil for create
	Diff     map[string]*AttrDiff
	Requires []string

	// AllDeps is the full dependency set of the resource, recorded into
	// state so destroy ordering works without re-parsing configuration.
	AllDeps []string
}

// AttrDiff is an attribute-level before/after pair.
type AttrDiff struct {
	Before            any
	After             any
	ForcesReplacement bool
	Action            Action
}

type PlanSummary struct {
	Create  int
	Update  int
	Replace int
	Delete  int
	NoOp    int
}

// Empty reports whether the plan contains no actionable operations.
func (p *Plan) Empty() bool {
	return len(p.Changes) == 0
}
