package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/lang"
	"github.com/floehq/floe/internal/logging"
	"github.com/floehq/floe/internal/provider"
)

// OperationStatus describes the terminal outcome of one planned operation.
type OperationStatus string

const (
	StatusSucceeded OperationStatus = "succeeded"
	StatusFailed    OperationStatus = "failed"
	StatusSkipped   OperationStatus = "skipped"
)

// OperationResult records the outcome of one operation.
type OperationResult struct {
	Address  string
	Action   ir.Action
	Status   OperationStatus
	Duration time.Duration
	Err      error
}

// ApplyReport aggregates the outcome of a whole apply run.
type ApplyReport struct {
	mu      sync.Mutex
	Results []*OperationResult
}

func (r *ApplyReport) add(res *OperationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = append(r.Results, res)
}

// Counts returns the number of succeeded, failed and skipped operations.
func (r *ApplyReport) Counts() (succeeded, failed, skipped int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusSucceeded:
			succeeded++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// Unhealthy returns the addresses whose operation failed or was skipped.
func (r *ApplyReport) Unhealthy() map[string]bool {
	out := make(map[string]bool)
	for _, res := range r.Results {
		if res.Status != StatusSucceeded {
			out[res.Address] = true
		}
	}
	return out
}

// ApplyEvent represents a progress event during apply.
type ApplyEvent struct {
	Address  string
	Action   ir.Action
	Status   OperationStatus
	Started  bool
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// PersistFunc writes the state document after each committed operation. It
// is called under the executor's state mutex.
type PersistFunc func(st *ir.State) error

// Apply executes a plan with bounded parallelism, respecting the Requires
// edges of each change. An operation starts only once every change it
// requires has committed; when a required change fails, every transitive
// dependent is skipped, while independent subgraphs keep going. State is
// persisted after each committed operation so an interrupted run loses at
// most the operations in flight.
func (e *Engine) Apply(ctx context.Context, plan *ir.Plan, st *ir.State, scope *lang.Scope, persist PersistFunc, callback ApplyCallback) (*ApplyReport, error) {
	report := &ApplyReport{}
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	requires := make(map[string]map[string]bool, len(plan.Changes))
	for _, change := range plan.Changes {
		set := make(map[string]bool, len(change.Requires))
		for _, dep := range change.Requires {
			set[dep] = true
		}
		requires[change.Address] = set
	}

	var stateMu sync.Mutex
	completed := make(map[string]bool)
	failed := make(map[string]bool)
	schedMu := sync.Mutex{}
	schedCond := sync.NewCond(&schedMu)
	sem := make(chan struct{}, parallelism)

	var wg sync.WaitGroup
	for _, change := range plan.Changes {
		wg.Add(1)
		go func(c *ir.Change) {
			defer wg.Done()

			schedMu.Lock()
			for {
				depFailed := false
				ready := true
				for dep := range requires[c.Address] {
					if failed[dep] {
						depFailed = true
						break
					}
					if !completed[dep] {
						ready = false
						break
					}
				}
				if depFailed {
					failed[c.Address] = true
					schedMu.Unlock()
					schedCond.Broadcast()
					report.add(&OperationResult{
						Address: c.Address,
						Action:  c.Action,
						Status:  StatusSkipped,
						Err:     fmt.Errorf("skipped: a required change failed"),
					})
					emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: StatusSkipped})
					return
				}
				if ready {
					break
				}
				schedCond.Wait()
			}
			schedMu.Unlock()

			// A cancelled run starts nothing new; operations already in
			// flight finish under their own timeout.
			if err := ctx.Err(); err != nil {
				schedMu.Lock()
				failed[c.Address] = true
				schedMu.Unlock()
				schedCond.Broadcast()
				report.add(&OperationResult{
					Address: c.Address,
					Action:  c.Action,
					Status:  StatusSkipped,
					Err:     fmt.Errorf("skipped: run cancelled: %w", err),
				})
				emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: StatusSkipped, Error: err})
				return
			}

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			emit(ApplyEvent{Address: c.Address, Action: c.Action, Started: true})

			err := e.executeChange(ctx, c, st, scope, &stateMu, persist)
			duration := time.Since(start)

			schedMu.Lock()
			if err != nil {
				failed[c.Address] = true
			} else {
				completed[c.Address] = true
			}
			schedMu.Unlock()
			schedCond.Broadcast()

			if err != nil {
				report.add(&OperationResult{Address: c.Address, Action: c.Action, Status: StatusFailed, Duration: duration, Err: err})
				emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: StatusFailed, Duration: duration, Error: err})
				return
			}
			report.add(&OperationResult{Address: c.Address, Action: c.Action, Status: StatusSucceeded, Duration: duration})
			emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: StatusSucceeded, Duration: duration})
		}(change)
	}
	wg.Wait()

	var errs []error
	for _, res := range report.Results {
		if res.Status == StatusFailed {
			errs = append(errs, res.Err)
		}
	}
	if len(errs) > 0 {
		return report, fmt.Errorf("%d operation(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return report, nil
}

// executeChange runs one operation against its provider and commits the
// result to state. The timeout applies per provider call, not to the
// operation as a whole: a timed-out call is a transient failure and the
// retry loop must be free to attempt it again.
func (e *Engine) executeChange(ctx context.Context, c *ir.Change, st *ir.State, scope *lang.Scope, stateMu *sync.Mutex, persist PersistFunc) error {
	logging.Debug("executing change", "address", c.Address, "action", string(c.Action))

	timeout := opTimeout(c)

	providerName := providerOf(c)
	prov, err := e.Registry.Get(providerName)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Address, err)
	}

	switch c.Action {
	case ir.ActionCreate:
		return e.createInstance(ctx, prov, c, st, scope, stateMu, persist, timeout)
	case ir.ActionUpdate:
		return e.updateInstance(ctx, prov, c, st, scope, stateMu, persist, timeout)
	case ir.ActionReplace:
		return e.replaceInstance(ctx, prov, c, st, scope, stateMu, persist, timeout)
	case ir.ActionDelete:
		return e.deleteInstance(ctx, prov, c, st, stateMu, persist, timeout)
	default:
		return fmt.Errorf("%s: unexpected action %q", c.Address, c.Action)
	}
}

// opTimeout returns the per-call timeout for one operation, from the
// resource's timeout attribute when set.
func opTimeout(c *ir.Change) time.Duration {
	if c.Desired != nil && c.Desired.Timeout != "" {
		if d, err := time.ParseDuration(c.Desired.Timeout); err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

func (e *Engine) createInstance(ctx context.Context, prov provider.Interface, c *ir.Change, st *ir.State, scope *lang.Scope, stateMu *sync.Mutex, persist PersistFunc, timeout time.Duration) error {
	inputs, desiredJSON, err := resolveDesired(c.Desired, nil, scope)
	if err != nil {
		return err
	}
	outputs, err := e.callApply(ctx, prov, c, desiredJSON, nil, timeout)
	if err != nil {
		return err
	}
	return commitRecord(c, st, scope, stateMu, persist, inputs, outputs)
}

func (e *Engine) updateInstance(ctx context.Context, prov provider.Interface, c *ir.Change, st *ir.State, scope *lang.Scope, stateMu *sync.Mutex, persist PersistFunc, timeout time.Duration) error {
	inputs, desiredJSON, err := resolveDesired(c.Desired, c.Prior, scope)
	if err != nil {
		return err
	}
	priorJSON, err := json.Marshal(c.Prior.Outputs)
	if err != nil {
		return fmt.Errorf("%s: encoding prior state: %w", c.Address, err)
	}
	outputs, err := e.callApply(ctx, prov, c, desiredJSON, priorJSON, timeout)
	if err != nil {
		return err
	}
	return commitRecord(c, st, scope, stateMu, persist, inputs, outputs)
}

// replaceInstance destroys and recreates an instance. The default order is
// delete first; create_before_destroy inverts it, in which case a failed
// cleanup leaves the new instance committed and reports the stale one.
func (e *Engine) replaceInstance(ctx context.Context, prov provider.Interface, c *ir.Change, st *ir.State, scope *lang.Scope, stateMu *sync.Mutex, persist PersistFunc, timeout time.Duration) error {
	inputs, desiredJSON, err := resolveDesired(c.Desired, nil, scope)
	if err != nil {
		return err
	}
	priorJSON, err := json.Marshal(c.Prior.Outputs)
	if err != nil {
		return fmt.Errorf("%s: encoding prior state: %w", c.Address, err)
	}

	createBeforeDestroy := c.Desired.Lifecycle != nil && c.Desired.Lifecycle.CreateBeforeDestroy

	if !createBeforeDestroy {
		if err := e.callDelete(ctx, prov, c, priorJSON, timeout); err != nil {
			return fmt.Errorf("%s: destroying prior instance: %w", c.Address, err)
		}
		stateMu.Lock()
		st.Remove(c.Address)
		persistErr := persist(st)
		stateMu.Unlock()
		if persistErr != nil {
			return fmt.Errorf("%s: persisting state: %w", c.Address, persistErr)
		}
	}

	outputs, err := e.callApply(ctx, prov, c, desiredJSON, nil, timeout)
	if err != nil {
		return err
	}
	if err := commitRecord(c, st, scope, stateMu, persist, inputs, outputs); err != nil {
		return err
	}

	if createBeforeDestroy {
		if err := e.callDelete(ctx, prov, c, priorJSON, timeout); err != nil {
			return fmt.Errorf("%s: replacement created but prior instance was not destroyed: %w", c.Address, err)
		}
	}
	return nil
}

func (e *Engine) deleteInstance(ctx context.Context, prov provider.Interface, c *ir.Change, st *ir.State, stateMu *sync.Mutex, persist PersistFunc, timeout time.Duration) error {
	priorJSON, err := json.Marshal(c.Prior.Outputs)
	if err != nil {
		return fmt.Errorf("%s: encoding prior state: %w", c.Address, err)
	}
	if err := e.callDelete(ctx, prov, c, priorJSON, timeout); err != nil {
		return err
	}

	stateMu.Lock()
	st.Remove(c.Address)
	persistErr := persist(st)
	stateMu.Unlock()
	if persistErr != nil {
		return fmt.Errorf("%s: persisting state: %w", c.Address, persistErr)
	}
	return nil
}

// callApply invokes the provider with a fresh timeout context per attempt,
// detached from run cancellation so an in-flight call is never cut off
// mid-request. A timed-out attempt surfaces as DeadlineExceeded, which the
// transient classifier makes eligible for retry.
func (e *Engine) callApply(ctx context.Context, prov provider.Interface, c *ir.Change, desiredJSON, priorJSON []byte, timeout time.Duration) (map[string]any, error) {
	var resp *provider.ApplyResponse
	err := RetryWithBackoff(ctx, e.Retry, func() error {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		var applyErr error
		resp, applyErr = prov.Apply(callCtx, &provider.ApplyRequest{
			Type:        c.Desired.Type,
			Name:        c.Desired.Name,
			DesiredJSON: desiredJSON,
			PriorJSON:   priorJSON,
		})
		return applyErr
	}, provider.IsTransient)
	if err != nil {
		return nil, fmt.Errorf("%s: apply failed: %w", c.Address, err)
	}

	var outputs map[string]any
	if len(resp.OutputsJSON) > 0 {
		if err := json.Unmarshal(resp.OutputsJSON, &outputs); err != nil {
			return nil, fmt.Errorf("%s: decoding provider outputs: %w", c.Address, err)
		}
	}
	return outputs, nil
}

func (e *Engine) callDelete(ctx context.Context, prov provider.Interface, c *ir.Change, priorJSON []byte, timeout time.Duration) error {
	err := RetryWithBackoff(ctx, e.Retry, func() error {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		return prov.Delete(callCtx, &provider.DeleteRequest{
			Type:      c.Prior.Type,
			Name:      c.Prior.Name,
			PriorJSON: priorJSON,
		})
	}, provider.IsTransient)
	if err != nil {
		return fmt.Errorf("%s: delete failed: %w", c.Address, err)
	}
	return nil
}

// resolveDesired re-evaluates the instance's attributes now that its
// dependencies have committed real values. Every value must be known at
// this point. Attributes under ignore_changes keep their recorded input.
func resolveDesired(res *ir.Resource, prior *ir.Record, scope *lang.Scope) (map[string]any, []byte, error) {
	desired, err := evalAttributes(res, scope)
	if err != nil {
		return nil, nil, err
	}

	inputs := make(map[string]any, len(desired))
	for attr, val := range desired {
		if !val.IsWhollyKnown() {
			return nil, nil, fmt.Errorf("%s: attribute %q is still unknown at apply time", res.Addr(), attr)
		}
		gv, err := lang.CtyToGo(val)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: attribute %q: %w", res.Addr(), attr, err)
		}
		inputs[attr] = gv
	}

	if prior != nil && res.Lifecycle != nil {
		for _, attr := range res.Lifecycle.IgnoreChanges {
			if pv, ok := prior.Inputs[attr]; ok {
				inputs[attr] = pv
			}
		}
	}

	encoded, err := json.Marshal(inputs)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: encoding desired attributes: %w", res.Addr(), err)
	}
	return inputs, encoded, nil
}

// commitRecord writes the new record into state, persists, and publishes
// the instance's real value into the scope.
func commitRecord(c *ir.Change, st *ir.State, scope *lang.Scope, stateMu *sync.Mutex, persist PersistFunc, inputs, outputs map[string]any) error {
	rec := &ir.Record{
		Type:         c.Desired.Type,
		Name:         c.Desired.Name,
		Key:          keyToGo(c.Desired.Key),
		Provider:     c.Desired.Provider,
		Inputs:       inputs,
		Outputs:      outputs,
		Dependencies: c.AllDeps,
	}

	stateMu.Lock()
	st.Put(rec)
	persistErr := persist(st)
	stateMu.Unlock()
	if persistErr != nil {
		return fmt.Errorf("%s: persisting state: %w", c.Address, persistErr)
	}

	return scope.SetRecord(rec)
}

func providerOf(c *ir.Change) string {
	if c.Desired != nil {
		return c.Desired.Provider
	}
	return c.Prior.Provider
}

func keyToGo(key cty.Value) any {
	switch {
	case key == cty.NilVal || key.IsNull():
		return nil
	case key.Type() == cty.String:
		return key.AsString()
	case key.Type() == cty.Number:
		f, _ := key.AsBigFloat().Float64()
		return f
	default:
		return nil
	}
}
