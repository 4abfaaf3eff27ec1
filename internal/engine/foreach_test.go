package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/floehq/floe/internal/ir"
	"github.com/floehq/floe/internal/lang"
)

func TestExpand_ForEachMapSortsKeys(t *testing.T) {
	res := testResource("clients")
	res.ForEach = expr(t, `{ web = { callback = "https://web" }, admin = { callback = "https://admin" } }`)

	expanded, err := Expand([]*ir.Resource{res}, lang.NewScope(nil))
	require.NoError(t, err)
	require.Len(t, expanded, 2)

	assert.Equal(t, `test_thing.clients["admin"]`, expanded[0].Addr())
	assert.Equal(t, `test_thing.clients["web"]`, expanded[1].Addr())
	assert.Equal(t, cty.StringVal("admin"), expanded[0].Key)
	assert.Equal(t, "https://admin", expanded[0].EachValue.GetAttr("callback").AsString())
	assert.Nil(t, expanded[0].ForEach)
}

func TestExpand_ForEachSetOfStrings(t *testing.T) {
	res := testResource("groups")
	res.ForEach = expr(t, `toset(["admins", "readers"])`)

	expanded, err := Expand([]*ir.Resource{res}, lang.NewScope(nil))
	require.NoError(t, err)
	require.Len(t, expanded, 2)
	assert.Equal(t, `test_thing.groups["admins"]`, expanded[0].Addr())
	assert.Equal(t, `test_thing.groups["readers"]`, expanded[1].Addr())
	assert.Equal(t, expanded[0].Key, expanded[0].EachValue)
}

func TestExpand_ForEachRejectsUnknown(t *testing.T) {
	res := testResource("clients")
	res.ForEach = expr(t, "var.client_names")

	scope := lang.NewScope(map[string]cty.Value{
		"client_names": cty.UnknownVal(cty.Set(cty.String)),
	})
	_, err := Expand([]*ir.Resource{res}, scope)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be known at plan time")
}

func TestExpand_ForEachRejectsNull(t *testing.T) {
	res := testResource("clients")
	res.ForEach = expr(t, "var.client_names")

	scope := lang.NewScope(map[string]cty.Value{
		"client_names": cty.NullVal(cty.Map(cty.String)),
	})
	_, err := Expand([]*ir.Resource{res}, scope)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be null")
}

func TestExpand_ForEachRejectsScalar(t *testing.T) {
	res := testResource("clients")
	res.ForEach = expr(t, `"web"`)

	_, err := Expand([]*ir.Resource{res}, lang.NewScope(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a map or a set of strings")
}

func TestExpand_CountProducesIndexedInstances(t *testing.T) {
	res := testResource("waiters")
	res.Count = expr(t, "3")

	expanded, err := Expand([]*ir.Resource{res}, lang.NewScope(nil))
	require.NoError(t, err)
	require.Len(t, expanded, 3)
	assert.Equal(t, "test_thing.waiters[0]", expanded[0].Addr())
	assert.Equal(t, "test_thing.waiters[2]", expanded[2].Addr())
	assert.Equal(t, cty.NumberIntVal(1), expanded[1].Key)
	assert.Nil(t, expanded[1].Count)
}

func TestExpand_CountZeroDropsResource(t *testing.T) {
	res := testResource("waiters")
	res.Count = expr(t, "0")

	expanded, err := Expand([]*ir.Resource{res}, lang.NewScope(nil))
	require.NoError(t, err)
	assert.Empty(t, expanded)
}

func TestExpand_CountRejectsNegative(t *testing.T) {
	res := testResource("waiters")
	res.Count = expr(t, "-1")

	_, err := Expand([]*ir.Resource{res}, lang.NewScope(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestExpand_SingularPassesThrough(t *testing.T) {
	res := testResource("main")

	expanded, err := Expand([]*ir.Resource{res}, lang.NewScope(nil))
	require.NoError(t, err)
	require.Len(t, expanded, 1)
	assert.Same(t, res, expanded[0])
	assert.Equal(t, "test_thing.main", expanded[0].Addr())
}

func TestExpand_InstancesShareConfigExpressions(t *testing.T) {
	res := testResource("clients")
	res.Config["name"] = expr(t, "each.key")
	res.ForEach = expr(t, `{ a = 1, b = 2 }`)

	expanded, err := Expand([]*ir.Resource{res}, lang.NewScope(nil))
	require.NoError(t, err)
	require.Len(t, expanded, 2)

	scope := lang.NewScope(nil)
	for _, inst := range expanded {
		desired, err := evalAttributes(inst, scope)
		require.NoError(t, err)
		assert.Equal(t, inst.Key, desired["name"])
	}
}
