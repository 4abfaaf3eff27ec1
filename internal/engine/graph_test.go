package engine

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/floehq/floe/internal/ir"
)

func expr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	e, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return e
}

func testResource(name string) *ir.Resource {
	return &ir.Resource{
		Type:     "test_thing",
		Name:     name,
		Provider: "test",
		Key:      cty.NilVal,
		Config:   map[string]hcl.Expression{},
	}
}

func TestBuildGraph_IndependentNodesAreLexical(t *testing.T) {
	resources := []*ir.Resource{
		testResource("charlie"),
		testResource("alpha"),
		testResource("bravo"),
	}

	g, err := BuildGraph(resources)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"test_thing.alpha",
		"test_thing.bravo",
		"test_thing.charlie",
	}, g.CreationOrder())
}

func TestBuildGraph_ReferenceEdges(t *testing.T) {
	a := testResource("a")
	b := testResource("b")
	b.Config["upstream"] = expr(t, "test_thing.a.id")

	g, err := BuildGraph([]*ir.Resource{b, a})
	require.NoError(t, err)

	assert.Equal(t, []string{"test_thing.a", "test_thing.b"}, g.CreationOrder())
	assert.Equal(t, []string{"test_thing.a"}, g.Dependencies("test_thing.b"))
	assert.Equal(t, []string{"test_thing.b"}, g.Dependents("test_thing.a"))
}

func TestBuildGraph_DependsOnFansOutToInstances(t *testing.T) {
	web := testResource("clients")
	web.Key = cty.StringVal("web")
	mobile := testResource("clients")
	mobile.Key = cty.StringVal("mobile")

	waiter := testResource("waiter")
	waiter.DependsOn = []string{"test_thing.clients"}

	g, err := BuildGraph([]*ir.Resource{waiter, web, mobile})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`test_thing.clients["mobile"]`,
		`test_thing.clients["web"]`,
	}, g.Dependencies("test_thing.waiter"))
}

func TestBuildGraph_SelfReferenceIgnored(t *testing.T) {
	a := testResource("a")
	a.Config["note"] = expr(t, "test_thing.a.id")

	g, err := BuildGraph([]*ir.Resource{a})
	require.NoError(t, err)
	assert.Empty(t, g.Dependencies("test_thing.a"))
}

func TestBuildGraph_NonResourceRootsIgnored(t *testing.T) {
	a := testResource("a")
	a.Config["name"] = expr(t, "var.pool_name")

	g, err := BuildGraph([]*ir.Resource{a})
	require.NoError(t, err)
	assert.Empty(t, g.Dependencies("test_thing.a"))
}

func TestBuildGraph_CycleReportsParticipants(t *testing.T) {
	a := testResource("a")
	a.Config["from"] = expr(t, "test_thing.b.id")
	b := testResource("b")
	b.Config["from"] = expr(t, "test_thing.a.id")

	_, err := BuildGraph([]*ir.Resource{a, b})
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, cycleErr.Addresses, "test_thing.a")
	assert.Contains(t, cycleErr.Addresses, "test_thing.b")
	assert.Contains(t, err.Error(), "dependency cycle detected")
}

func TestBuildGraph_DuplicateAddress(t *testing.T) {
	_, err := BuildGraph([]*ir.Resource{testResource("a"), testResource("a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate resource address")
}

func TestDestructionOrder_ReversesCreation(t *testing.T) {
	a := testResource("a")
	b := testResource("b")
	b.Config["upstream"] = expr(t, "test_thing.a.id")
	c := testResource("c")
	c.Config["upstream"] = expr(t, "test_thing.b.id")

	g, err := BuildGraph([]*ir.Resource{c, a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"test_thing.c",
		"test_thing.b",
		"test_thing.a",
	}, g.DestructionOrder())
}

func TestBuildStateGraph_UsesRecordedDependencies(t *testing.T) {
	records := []*ir.Record{
		{Type: "test_thing", Name: "a", Provider: "test"},
		{Type: "test_thing", Name: "b", Provider: "test", Dependencies: []string{"test_thing.a"}},
		{Type: "test_thing", Name: "c", Provider: "test", Dependencies: []string{"test_thing.b", "test_thing.gone"}},
	}

	g, err := BuildStateGraph(records)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"test_thing.c",
		"test_thing.b",
		"test_thing.a",
	}, g.DestructionOrder())
	assert.Equal(t, []string{"test_thing.b"}, g.Dependencies("test_thing.c"))
}
