package recipe

// Recipe is a versioned workflow definition.
type Recipe struct {
	ID        string         `json:"id" yaml:"id" validate:"required,identifier"`
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	Version   string         `json:"version,omitempty" yaml:"version,omitempty"`
	ProjectID string         `json:"projectId,omitempty" yaml:"projectId,omitempty"`
	Stage     string         `json:"stage,omitempty" yaml:"stage,omitempty"`
	Nodes     []Node         `json:"nodes" yaml:"nodes"`
	Edges     []Edge         `json:"edges,omitempty" yaml:"edges,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Node returns the node with the given id.
func (r *Recipe) Node(id string) (*Node, bool) {
	for i := range r.Nodes {
		if r.Nodes[i].ID == id {
			return &r.Nodes[i], true
		}
	}
	return nil, false
}
