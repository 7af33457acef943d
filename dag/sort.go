package dag

import (
	"sort"

	"github.com/kbukum/recipeflow/recipe"
)

// TopologicalSort orders node ids so every edge points forward. It uses
// Kahn's algorithm with a FIFO queue seeded in node declaration order, so
// the result is stable for a given definition.
func TopologicalSort(nodes []recipe.Node, edges []recipe.Edge) ([]string, error) {
	inDegree, out, err := degrees(nodes, edges)
	if err != nil {
		return nil, err
	}

	queue := make([]string, 0, len(nodes))
	for i := range nodes {
		if inDegree[nodes[i].ID] == 0 {
			queue = append(queue, nodes[i].ID)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range out[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, structural(ErrCycleDetected, "ordered %d of %d nodes", len(order), len(nodes))
	}
	return order, nil
}

// BuildLevels groups node ids by dependency level: every node's upstream
// nodes sit in earlier levels, so nodes within one level may run
// concurrently. Levels keep node declaration order.
func BuildLevels(nodes []recipe.Node, edges []recipe.Edge) ([][]string, error) {
	inDegree, out, err := degrees(nodes, edges)
	if err != nil {
		return nil, err
	}
	position := make(map[string]int, len(nodes))
	for i := range nodes {
		position[nodes[i].ID] = i
	}

	var current []string
	for i := range nodes {
		if inDegree[nodes[i].ID] == 0 {
			current = append(current, nodes[i].ID)
		}
	}

	var levels [][]string
	visited := 0
	for len(current) > 0 {
		levels = append(levels, current)
		visited += len(current)

		var next []string
		for _, id := range current {
			for _, dep := range out[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Slice(next, func(i, j int) bool { return position[next[i]] < position[next[j]] })
		current = next
	}

	if visited != len(nodes) {
		return nil, structural(ErrCycleDetected, "processed %d of %d nodes", visited, len(nodes))
	}
	return levels, nil
}

// Ancestors returns every node id that can reach id, sorted.
func Ancestors(id string, edges []recipe.Edge) []string {
	return reach(id, upstream(edges))
}

// Descendants returns every node id reachable from id, sorted.
func Descendants(id string, edges []recipe.Edge) []string {
	return reach(id, downstream(edges))
}

func reach(id string, adj map[string][]string) []string {
	seen := map[string]bool{id: true}
	stack := append([]string{}, adj[id]...)
	var out []string
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
		stack = append(stack, adj[n]...)
	}
	sort.Strings(out)
	return out
}

func degrees(nodes []recipe.Node, edges []recipe.Edge) (map[string]int, map[string][]string, error) {
	inDegree := make(map[string]int, len(nodes))
	for i := range nodes {
		inDegree[nodes[i].ID] = 0
	}
	out := make(map[string][]string)
	for _, e := range edges {
		if _, ok := inDegree[e.From]; !ok {
			return nil, nil, structural(ErrUnknownNode, "%q", e.From)
		}
		if _, ok := inDegree[e.To]; !ok {
			return nil, nil, structural(ErrUnknownNode, "%q", e.To)
		}
		inDegree[e.To]++
		out[e.From] = append(out[e.From], e.To)
	}
	return inDegree, out, nil
}
