package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"

	"github.com/floehq/floe/internal/ir"
)

// CycleError is returned when resource references close a cycle. It names
// the participating addresses in traversal order.
type CycleError struct {
	Addresses []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Addresses, " -> "))
}

// Graph is a directed acyclic graph of resource instances used for
// dependency ordering. Construction fails with CycleError before any
// provider is called.
type Graph struct {
	nodes map[string]*gnode
	order []string // deterministic topological order (creation order)
}

type gnode struct {
	addr       string
	deps       map[string]bool
	dependents map[string]bool
}

// BuildGraph constructs the dependency graph for a set of expanded
// resources. Edges come from explicit depends_on entries and from static
// extraction of cross-resource references in attribute expressions.
func BuildGraph(resources []*ir.Resource) (*Graph, error) {
	g := newGraph()

	// base address -> expanded instance addresses
	instances := make(map[string][]string)
	typeSet := make(map[string]bool)
	for _, res := range resources {
		addr := res.Addr()
		if _, exists := g.nodes[addr]; exists {
			return nil, fmt.Errorf("duplicate resource address %q", addr)
		}
		g.addNode(addr)
		instances[res.BaseAddr()] = append(instances[res.BaseAddr()], addr)
		typeSet[res.Type] = true
	}

	for _, res := range resources {
		addr := res.Addr()

		for _, dep := range res.DependsOn {
			for _, depAddr := range instances[dep] {
				g.addEdge(addr, depAddr)
			}
		}

		for _, expr := range res.Config {
			for _, base := range referencedResources(expr, typeSet) {
				if base == res.BaseAddr() {
					continue
				}
				for _, depAddr := range instances[base] {
					g.addEdge(addr, depAddr)
				}
			}
		}
	}

	if err := g.detectCycle(); err != nil {
		return nil, err
	}
	g.order = g.topoSort()
	return g, nil
}

// BuildStateGraph constructs a graph from state records, using the
// dependency lists captured at apply time. Used for destroy ordering.
func BuildStateGraph(records []*ir.Record) (*Graph, error) {
	g := newGraph()
	for _, rec := range records {
		g.addNode(rec.Addr())
	}
	for _, rec := range records {
		for _, dep := range rec.Dependencies {
			if _, ok := g.nodes[dep]; ok {
				g.addEdge(rec.Addr(), dep)
			}
		}
	}
	if err := g.detectCycle(); err != nil {
		return nil, err
	}
	g.order = g.topoSort()
	return g, nil
}

func newGraph() *Graph {
	return &Graph{nodes: make(map[string]*gnode)}
}

func (g *Graph) addNode(addr string) {
	g.nodes[addr] = &gnode{
		addr:       addr,
		deps:       make(map[string]bool),
		dependents: make(map[string]bool),
	}
}

func (g *Graph) addEdge(from, to string) {
	g.nodes[from].deps[to] = true
	g.nodes[to].dependents[from] = true
}

// CreationOrder returns addresses in dependency-respecting creation order.
// Independent nodes are ordered lexically so plans are reproducible.
func (g *Graph) CreationOrder() []string {
	return g.order
}

// DestructionOrder returns addresses in reverse dependency order.
func (g *Graph) DestructionOrder() []string {
	rev := make([]string, len(g.order))
	for i, addr := range g.order {
		rev[len(g.order)-1-i] = addr
	}
	return rev
}

// Dependencies returns the direct dependencies of addr, sorted.
func (g *Graph) Dependencies(addr string) []string {
	node, ok := g.nodes[addr]
	if !ok {
		return nil
	}
	return sortedKeys(node.deps)
}

// Dependents returns the direct dependents of addr, sorted.
func (g *Graph) Dependents(addr string) []string {
	node, ok := g.nodes[addr]
	if !ok {
		return nil
	}
	return sortedKeys(node.dependents)
}

// detectCycle runs a depth-first search with an explicit recursion stack;
// any back-edge identifies a cycle, reported with its participants.
func (g *Graph) detectCycle() error {
	const (
		white = 0 // unvisited
		grey  = 1 // on the recursion stack
		black = 2 // fully explored
	)
	color := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(addr string) *CycleError
	visit = func(addr string) *CycleError {
		color[addr] = grey
		stack = append(stack, addr)

		for _, dep := range sortedKeys(g.nodes[addr].deps) {
			switch color[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case grey:
				// Back-edge: slice the stack from the first occurrence
				// of dep to close the reported cycle.
				for i, a := range stack {
					if a == dep {
						cycle := append(append([]string{}, stack[i:]...), dep)
						return &CycleError{Addresses: cycle}
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[addr] = black
		return nil
	}

	for _, addr := range sortedKeys2(g.nodes) {
		if color[addr] == white {
			if err := visit(addr); err != nil {
				return err
			}
		}
	}
	return nil
}

// topoSort is Kahn's algorithm with a lexically sorted ready set, so the
// order is deterministic across runs given identical input.
func (g *Graph) topoSort() []string {
	inDegree := make(map[string]int, len(g.nodes))
	for addr, node := range g.nodes {
		inDegree[addr] = len(node.deps)
	}

	var ready []string
	for addr, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, addr)
		}
	}
	sort.Strings(ready)

	sorted := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		addr := ready[0]
		ready = ready[1:]
		sorted = append(sorted, addr)

		for _, dependent := range sortedKeys(g.nodes[addr].dependents) {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
	}

	return sorted
}

// referencedResources statically extracts the base addresses of resources
// read by expr. A reference has the shape <type>.<name>... where <type> is
// a declared resource type.
func referencedResources(expr hcl.Expression, typeSet map[string]bool) []string {
	var bases []string
	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		if !typeSet[root] || len(traversal) < 2 {
			continue
		}
		nameStep, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			continue
		}
		bases = append(bases, fmt.Sprintf("%s.%s", root, nameStep.Name))
	}
	return bases
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys2(m map[string]*gnode) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
