package dag

import (
	"slices"
	"strings"

	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/validation"
)

// Validate checks that nodes and edges form a runnable recipe graph. Checks
// run in order and the first failing one is reported:
//
//  1. nodes are present, well-formed and uniquely identified; generation
//     nodes carry a capability config
//  2. every edge joins two existing, distinct nodes
//  3. the graph is acyclic
//  4. each declared dependency has a matching incoming edge
func Validate(nodes []recipe.Node, edges []recipe.Edge) error {
	if len(nodes) == 0 {
		return structural(ErrEmptyGraph, "at least one node is required")
	}

	ids := make(map[string]bool, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if err := validation.Validate(n); err != nil {
			return structural(ErrInvalidNode, "node %d (%q): %v", i, n.ID, err)
		}
		if ids[n.ID] {
			return structural(ErrDuplicateNode, "%q", n.ID)
		}
		ids[n.ID] = true
		if n.Type != recipe.NodeDataProcessing && n.Capability == nil {
			return structural(ErrMissingCapability, "%q (%s)", n.ID, n.Type)
		}
	}

	for _, e := range edges {
		if !ids[e.From] {
			return structural(ErrUnknownNode, "%q (edge %s -> %s)", e.From, e.From, e.To)
		}
		if !ids[e.To] {
			return structural(ErrUnknownNode, "%q (edge %s -> %s)", e.To, e.From, e.To)
		}
		if e.From == e.To {
			return structural(ErrSelfLoop, "%q", e.From)
		}
	}

	if cycle := findCycle(nodes, edges); cycle != nil {
		return structural(ErrCycleDetected, "%s", strings.Join(cycle, " -> "))
	}

	incoming := upstream(edges)
	for i := range nodes {
		n := &nodes[i]
		for _, dep := range n.Dependencies {
			if !slices.Contains(incoming[n.ID], dep) {
				return structural(ErrUndeclaredDependency, "%q depends on %q", n.ID, dep)
			}
		}
	}
	return nil
}

// findCycle runs a depth-first search that keeps the active path on a stack
// and stops at the first edge back into it. It returns the cycle as a closed
// path (first and last element equal), or nil.
func findCycle(nodes []recipe.Node, edges []recipe.Edge) []string {
	const (
		unvisited = iota
		active
		done
	)
	out := downstream(edges)
	state := make(map[string]int, len(nodes))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = active
		path = append(path, id)
		for _, next := range out[id] {
			switch state[next] {
			case active:
				start := slices.Index(path, next)
				cycle = append(append([]string{}, path[start:]...), next)
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return false
	}

	for i := range nodes {
		if state[nodes[i].ID] == unvisited && visit(nodes[i].ID) {
			return cycle
		}
	}
	return nil
}

// downstream maps each node to its successors in edge declaration order.
func downstream(edges []recipe.Edge) map[string][]string {
	m := make(map[string][]string)
	for _, e := range edges {
		m[e.From] = append(m[e.From], e.To)
	}
	return m
}

// upstream maps each node to its predecessors in edge declaration order.
func upstream(edges []recipe.Edge) map[string][]string {
	m := make(map[string][]string)
	for _, e := range edges {
		m[e.To] = append(m[e.To], e.From)
	}
	return m
}
