package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/lang"
	"github.com/floehq/floe/internal/provider"
)

func TestPlan_CreateWithReference(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "pool" {
  name = "customers"
}

resource "test_thing" "client" {
  name    = "web"
  pool_id = test_thing.pool.id
}
`)
	e := newTestEngine(newFakeProvider())

	plan, err := e.Plan(context.Background(), cfg, ir.NewState(), lang.NewScope(nil))
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "test_thing.pool", plan.Changes[0].Address)
	assert.Equal(t, "test_thing.client", plan.Changes[1].Address)
	assert.Equal(t, ir.ActionCreate, plan.Changes[0].Action)
	assert.Equal(t, ir.ActionCreate, plan.Changes[1].Action)
	assert.Equal(t, []string{"test_thing.pool"}, plan.Changes[1].Requires)
	assert.Equal(t, 2, plan.Summary.Create)

	// The referenced id is unknown until the pool commits.
	assert.Equal(t, lang.UnknownPlaceholder, plan.Changes[1].Diff["pool_id"].After)
	assert.Equal(t, "web", plan.Changes[1].Diff["name"].After)
}

func TestPlan_SecondPlanIsEmpty(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "pool" {
  name = "customers"
}

resource "test_thing" "client" {
  name    = "web"
  pool_id = test_thing.pool.id
}
`)
	st := ir.NewState()
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Provider: "test",
		Inputs:  map[string]any{"name": "customers"},
		Outputs: map[string]any{"id": "pool-1"},
	})
	st.Put(&ir.Record{
		Type: "test_thing", Name: "client", Provider: "test",
		Inputs:       map[string]any{"name": "web", "pool_id": "pool-1"},
		Outputs:      map[string]any{"id": "client-1"},
		Dependencies: []string{"test_thing.pool"},
	})
	e := newTestEngine(newFakeProvider())

	plan, err := e.Plan(context.Background(), cfg, st, lang.NewScope(nil))
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 2, plan.Summary.NoOp)
	assert.Equal(t, 0, plan.Summary.Create)
}

func TestPlan_UpdateInPlace(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "pool" {
  name = "renamed"
}
`)
	st := ir.NewState()
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Provider: "test",
		Inputs:  map[string]any{"name": "customers"},
		Outputs: map[string]any{"id": "pool-1"},
	})
	e := newTestEngine(newFakeProvider())

	plan, err := e.Plan(context.Background(), cfg, st, lang.NewScope(nil))
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	change := plan.Changes[0]
	assert.Equal(t, ir.ActionUpdate, change.Action)
	assert.Equal(t, "customers", change.Diff["name"].Before)
	assert.Equal(t, "renamed", change.Diff["name"].After)
	assert.False(t, change.Diff["name"].ForcesReplacement)
}

func TestPlan_ImmutableAttrForcesReplace(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "pool" {
  name = "renamed"
}
`)
	st := ir.NewState()
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Provider: "test",
		Inputs:  map[string]any{"name": "customers"},
		Outputs: map[string]any{"id": "pool-1"},
	})
	p := newFakeProvider()
	p.schemas["test_thing"] = &provider.Schema{ImmutableAttrs: []string{"name"}}
	e := newTestEngine(p)

	plan, err := e.Plan(context.Background(), cfg, st, lang.NewScope(nil))
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, ir.ActionReplace, plan.Changes[0].Action)
	assert.True(t, plan.Changes[0].Diff["name"].ForcesReplacement)
	assert.Equal(t, 1, plan.Summary.Replace)
}

func TestPlan_IgnoreChangesSuppressesDiff(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "pool" {
  name        = "renamed"
  description = "kept"

  lifecycle {
    ignore_changes = [name]
  }
}
`)
	st := ir.NewState()
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Provider: "test",
		Inputs:  map[string]any{"name": "customers", "description": "kept"},
		Outputs: map[string]any{"id": "pool-1"},
	})
	e := newTestEngine(newFakeProvider())

	plan, err := e.Plan(context.Background(), cfg, st, lang.NewScope(nil))
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, plan.Summary.NoOp)
}

func TestPlan_PreventDestroyBlocksReplacement(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "pool" {
  name = "renamed"

  lifecycle {
    prevent_destroy = true
  }
}
`)
	st := ir.NewState()
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Provider: "test",
		Inputs: map[string]any{"name": "customers"},
	})
	p := newFakeProvider()
	p.schemas["test_thing"] = &provider.Schema{ImmutableAttrs: []string{"name"}}
	e := newTestEngine(p)

	_, err := e.Plan(context.Background(), cfg, st, lang.NewScope(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prevent_destroy")
}

func TestPlan_DroppedAttributeIsUpdate(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "pool" {
  name = "customers"
}
`)
	st := ir.NewState()
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Provider: "test",
		Inputs: map[string]any{"name": "customers", "description": "dropped"},
	})
	e := newTestEngine(newFakeProvider())

	plan, err := e.Plan(context.Background(), cfg, st, lang.NewScope(nil))
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, ir.ActionUpdate, plan.Changes[0].Action)
	assert.Equal(t, "dropped", plan.Changes[0].Diff["description"].Before)
	assert.Nil(t, plan.Changes[0].Diff["description"].After)
}

func TestPlan_UnknownDependencyValueIsChange(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "pool" {
  name = "renamed"
}

resource "test_thing" "client" {
  pool_id = test_thing.pool.id
}
`)
	st := ir.NewState()
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Provider: "test",
		Inputs: map[string]any{"name": "customers"},
	})
	st.Put(&ir.Record{
		Type: "test_thing", Name: "client", Provider: "test",
		Inputs:       map[string]any{"pool_id": "pool-1"},
		Dependencies: []string{"test_thing.pool"},
	})
	p := newFakeProvider()
	p.schemas["test_thing"] = &provider.Schema{ImmutableAttrs: []string{"name"}}
	e := newTestEngine(p)

	plan, err := e.Plan(context.Background(), cfg, st, lang.NewScope(nil))
	require.NoError(t, err)

	// The pool is being replaced, so its id is unknown and the client must
	// be re-applied even though its recorded inputs look current.
	require.Len(t, plan.Changes, 2)
	assert.Equal(t, ir.ActionReplace, plan.Changes[0].Action)
	assert.Equal(t, ir.ActionUpdate, plan.Changes[1].Action)
	assert.Equal(t, []string{"test_thing.pool"}, plan.Changes[1].Requires)
}

func TestPlan_OrphansDeletedInReverseOrder(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "pool" {
  name = "customers"
}
`)
	st := ir.NewState()
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Provider: "test",
		Inputs: map[string]any{"name": "customers"},
	})
	st.Put(&ir.Record{
		Type: "test_thing", Name: "client", Provider: "test",
		Inputs:       map[string]any{"pool_id": "pool-1"},
		Dependencies: []string{"test_thing.pool"},
	})
	st.Put(&ir.Record{
		Type: "test_thing", Name: "secret", Provider: "test",
		Inputs:       map[string]any{"client_id": "client-1"},
		Dependencies: []string{"test_thing.client"},
	})
	e := newTestEngine(newFakeProvider())

	plan, err := e.Plan(context.Background(), cfg, st, lang.NewScope(nil))
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "test_thing.secret", plan.Changes[0].Address)
	assert.Equal(t, "test_thing.client", plan.Changes[1].Address)
	assert.Equal(t, ir.ActionDelete, plan.Changes[0].Action)
	assert.Equal(t, ir.ActionDelete, plan.Changes[1].Action)
	assert.Equal(t, []string{"test_thing.secret"}, plan.Changes[1].Requires)
	assert.Equal(t, 2, plan.Summary.Delete)
	assert.Equal(t, 1, plan.Summary.NoOp)
}

func TestPlan_OrphanPreventDestroy(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "pool" {
  name  = "customers"
  count = 1

  lifecycle {
    prevent_destroy = true
  }
}
`)
	// A previous run created two instances; count shrank to one.
	st := ir.NewState()
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Key: float64(0), Provider: "test",
		Inputs: map[string]any{"name": "customers"},
	})
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Key: float64(1), Provider: "test",
		Inputs: map[string]any{"name": "customers"},
	})
	e := newTestEngine(newFakeProvider())

	_, err := e.Plan(context.Background(), cfg, st, lang.NewScope(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prevent_destroy")
}

func TestPlanDestroy_ReverseOrder(t *testing.T) {
	st := ir.NewState()
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Provider: "test",
	})
	st.Put(&ir.Record{
		Type: "test_thing", Name: "client", Provider: "test",
		Dependencies: []string{"test_thing.pool"},
	})
	e := newTestEngine(newFakeProvider())

	plan, err := e.PlanDestroy(context.Background(), nil, st)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "test_thing.client", plan.Changes[0].Address)
	assert.Equal(t, "test_thing.pool", plan.Changes[1].Address)
	assert.Equal(t, []string{"test_thing.client"}, plan.Changes[1].Requires)
	assert.Equal(t, 2, plan.Summary.Delete)
}

func TestPlanDestroy_PreventDestroy(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "pool" {
  name = "customers"

  lifecycle {
    prevent_destroy = true
  }
}
`)
	st := ir.NewState()
	st.Put(&ir.Record{
		Type: "test_thing", Name: "pool", Provider: "test",
		Inputs: map[string]any{"name": "customers"},
	})
	e := newTestEngine(newFakeProvider())

	_, err := e.PlanDestroy(context.Background(), cfg, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prevent_destroy")
}

func TestPlan_ExpandedInstances(t *testing.T) {
	cfg := loadConfig(t, `
resource "test_thing" "clients" {
  for_each = { web = "https://web", mobile = "https://mobile" }

  name     = each.key
  callback = each.value
}
`)
	e := newTestEngine(newFakeProvider())

	plan, err := e.Plan(context.Background(), cfg, ir.NewState(), lang.NewScope(nil))
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, `test_thing.clients["mobile"]`, plan.Changes[0].Address)
	assert.Equal(t, `test_thing.clients["web"]`, plan.Changes[1].Address)
	assert.Equal(t, "mobile", plan.Changes[0].Diff["name"].After)
	assert.Equal(t, "https://mobile", plan.Changes[0].Diff["callback"].After)
}
