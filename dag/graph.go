package dag

import "github.com/kbukum/recipeflow/recipe"

// Graph is a validated recipe with its execution order precomputed.
type Graph struct {
	Recipe *recipe.Recipe
	// Order is a topological order of node ids.
	Order []string
	// Levels groups Order into concurrently runnable sets.
	Levels [][]string

	nodes    map[string]*recipe.Node
	upstream map[string][]string
}

// Compile validates r and computes its execution order.
func Compile(r *recipe.Recipe) (*Graph, error) {
	if err := Validate(r.Nodes, r.Edges); err != nil {
		return nil, err
	}
	order, err := TopologicalSort(r.Nodes, r.Edges)
	if err != nil {
		return nil, err
	}
	levels, err := BuildLevels(r.Nodes, r.Edges)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		Recipe:   r,
		Order:    order,
		Levels:   levels,
		nodes:    make(map[string]*recipe.Node, len(r.Nodes)),
		upstream: upstream(r.Edges),
	}
	for i := range r.Nodes {
		g.nodes[r.Nodes[i].ID] = &r.Nodes[i]
	}
	return g, nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) *recipe.Node {
	return g.nodes[id]
}

// Upstream returns the direct predecessors of id.
func (g *Graph) Upstream(id string) []string {
	return g.upstream[id]
}

// Last returns the final node in execution order.
func (g *Graph) Last() *recipe.Node {
	return g.nodes[g.Order[len(g.Order)-1]]
}
