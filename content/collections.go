package content

// Nodes groups parsed nodes by concrete content type. This is the shape the
// walker accumulates and the graph store bulk-inserts.
type Nodes map[ContentType][]*Node

// Add appends nodes under their own types.
func (n Nodes) Add(nodes ...*Node) {
	for _, node := range nodes {
		n[node.Type] = append(n[node.Type], node)
	}
}

// Merge folds other into n.
func (n Nodes) Merge(other Nodes) {
	for t, nodes := range other {
		n[t] = append(n[t], nodes...)
	}
}

// Len returns the total node count across all types.
func (n Nodes) Len() int {
	total := 0
	for _, nodes := range n {
		total += len(nodes)
	}
	return total
}

// Relationships groups edges by relationship type.
type Relationships map[RelationshipType][]*Relationship

// Add appends edges under their own types.
func (r Relationships) Add(rels ...*Relationship) {
	for _, rel := range rels {
		r[rel.Type] = append(r[rel.Type], rel)
	}
}

// Merge folds other into r.
func (r Relationships) Merge(other Relationships) {
	for t, rels := range other {
		r[t] = append(r[t], rels...)
	}
}

// Len returns the total edge count across all types.
func (r Relationships) Len() int {
	total := 0
	for _, rels := range r {
		total += len(rels)
	}
	return total
}
