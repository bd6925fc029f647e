// Package graph builds the directed acyclic graph of parent/child table
// relationships from declared foreign keys and provides the topological
// orderings the engine runs in: parents-first for sampling, children-first
// for extension and fitting.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"synthdb/internal/metadata"
)

// ErrCycle reports a cyclic foreign-key graph. This is a configuration
// error: nothing can be modeled until the cycle is removed.
var ErrCycle = errors.New("graph: foreign-key cycle")

// Edge is one parent -> child relationship. A child with several foreign
// keys appears in several edges, one per FK column.
type Edge struct {
	Parent   string
	Child    string
	FKColumn string // column on the child
	RefField string // referenced column on the parent
}

// Graph is the relationship DAG over a dataset's tables.
type Graph struct {
	order    []string // parents before children
	children map[string][]Edge
	parents  map[string][]Edge
}

// Build constructs the graph from metadata and verifies acyclicity.
//
// The returned order is deterministic: ties between independent tables are
// broken by ascending name, so fit and sample runs are reproducible.
func Build(spec *metadata.Spec) (*Graph, error) {
	g := &Graph{
		children: make(map[string][]Edge),
		parents:  make(map[string][]Edge),
	}

	indegree := make(map[string]int, len(spec.Tables))
	for _, t := range spec.Tables {
		indegree[t.Name] = 0
	}

	for _, t := range spec.Tables {
		for _, fk := range spec.ForeignKeys(t.Name) {
			if fk.Table == t.Name {
				return nil, fmt.Errorf("%w: table %s references itself via %s", ErrCycle, t.Name, fk.Column)
			}
			e := Edge{Parent: fk.Table, Child: t.Name, FKColumn: fk.Column, RefField: fk.Field}
			g.children[fk.Table] = append(g.children[fk.Table], e)
			g.parents[t.Name] = append(g.parents[t.Name], e)
			indegree[t.Name]++
		}
	}

	// Kahn's algorithm with a sorted frontier for determinism.
	frontier := make([]string, 0, len(indegree))
	for name, d := range indegree {
		if d == 0 {
			frontier = append(frontier, name)
		}
	}
	sort.Strings(frontier)

	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		g.order = append(g.order, name)

		next := make([]string, 0, len(g.children[name]))
		seen := map[string]struct{}{}
		for _, e := range g.children[name] {
			indegree[e.Child]--
			if indegree[e.Child] == 0 {
				if _, dup := seen[e.Child]; !dup {
					seen[e.Child] = struct{}{}
					next = append(next, e.Child)
				}
			}
		}
		sort.Strings(next)
		frontier = append(frontier, next...)
		sort.Strings(frontier)
	}

	if len(g.order) != len(spec.Tables) {
		var stuck []string
		for name, d := range indegree {
			if d > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: involving tables %v", ErrCycle, stuck)
	}
	return g, nil
}

// TopologicalOrder returns tables with every parent before its children.
// This is the sampling order (root to leaves).
func (g *Graph) TopologicalOrder() []string {
	return append([]string(nil), g.order...)
}

// ReverseTopologicalOrder returns tables with every child before its
// parents. This is the extension/fit order (leaves to root): a table's
// whole subtree is aggregated before the table itself is aggregated
// upward.
func (g *Graph) ReverseTopologicalOrder() []string {
	out := make([]string, len(g.order))
	for i, name := range g.order {
		out[len(g.order)-1-i] = name
	}
	return out
}

// ChildrenOf returns the outgoing edges of a table in FK declaration order.
func (g *Graph) ChildrenOf(name string) []Edge {
	return g.children[name]
}

// ParentsOf returns the incoming edges of a table in FK declaration order.
// The first edge is the child's driving relationship during sampling.
func (g *Graph) ParentsOf(name string) []Edge {
	return g.parents[name]
}

// ParentOf resolves the relationship behind one foreign-key column.
func (g *Graph) ParentOf(name, fkColumn string) (Edge, bool) {
	for _, e := range g.parents[name] {
		if e.FKColumn == fkColumn {
			return e, true
		}
	}
	return Edge{}, false
}

// Roots returns tables with no parents, in topological order.
func (g *Graph) Roots() []string {
	var out []string
	for _, name := range g.order {
		if len(g.parents[name]) == 0 {
			out = append(out, name)
		}
	}
	return out
}
