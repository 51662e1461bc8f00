package dependency

import (
	"github.com/rpggio/fabtrack/internal/domain"
)

// Graph is the edge list of one unit with acyclicity validated on insertion.
type Graph struct {
	edges []Edge
	out   map[string][]string
}

// NewGraph indexes an existing, already-validated edge list.
func NewGraph(edges []Edge) *Graph {
	g := &Graph{out: make(map[string][]string)}
	for _, e := range edges {
		g.insert(e)
	}
	return g
}

// Edges returns a copy of the edge list.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Validate checks a candidate edge without inserting it.
func (g *Graph) Validate(candidate Edge) error {
	if candidate.PredecessorID == "" {
		return domain.Validation("predecessor_id", "required")
	}
	if candidate.DependentID == "" {
		return domain.Validation("dependent_id", "required")
	}
	if !candidate.Type.Valid() {
		return domain.Validation("type", "must be FinishToStart or StartToStart")
	}
	if candidate.LagDays < 0 {
		return domain.Validation("lag_days", "must be >= 0")
	}
	if candidate.PredecessorID == candidate.DependentID {
		return &CycleError{
			PredecessorID: candidate.PredecessorID,
			DependentID:   candidate.DependentID,
			Path:          []string{candidate.PredecessorID, candidate.DependentID},
		}
	}
	for _, e := range g.edges {
		if e.PredecessorID == candidate.PredecessorID && e.DependentID == candidate.DependentID {
			return domain.Validation("dependent_id", "edge already exists")
		}
	}
	if path := g.path(candidate.DependentID, candidate.PredecessorID); path != nil {
		return &CycleError{
			PredecessorID: candidate.PredecessorID,
			DependentID:   candidate.DependentID,
			Path:          append([]string{candidate.PredecessorID}, path...),
		}
	}
	return nil
}

// Add validates and inserts a candidate edge. On error the graph is unchanged.
func (g *Graph) Add(candidate Edge) error {
	if err := g.Validate(candidate); err != nil {
		return err
	}
	g.insert(candidate)
	return nil
}

// Remove drops the edge with the given id and reports whether it existed.
func (g *Graph) Remove(id string) bool {
	kept := g.edges[:0:0]
	found := false
	for _, e := range g.edges {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if found {
		*g = *NewGraph(kept)
	}
	return found
}

// Incoming returns edges whose dependent is id.
func (g *Graph) Incoming(id string) []Edge {
	var in []Edge
	for _, e := range g.edges {
		if e.DependentID == id {
			in = append(in, e)
		}
	}
	return in
}

// Downstream returns every transitive dependent of id in breadth-first order.
func (g *Graph) Downstream(id string) []string {
	seen := map[string]bool{id: true}
	var order []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.out[cur] {
			if seen[next] {
				continue
			}
			seen[next] = true
			order = append(order, next)
			queue = append(queue, next)
		}
	}
	return order
}

func (g *Graph) insert(e Edge) {
	g.edges = append(g.edges, e)
	g.out[e.PredecessorID] = append(g.out[e.PredecessorID], e.DependentID)
}

// path returns the node sequence from -> ... -> to, or nil when to is unreachable.
func (g *Graph) path(from, to string) []string {
	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			var rev []string
			for n := to; n != ""; n = prev[n] {
				rev = append(rev, n)
			}
			out := make([]string, len(rev))
			for i := range rev {
				out[i] = rev[len(rev)-1-i]
			}
			return out
		}
		for _, next := range g.out[cur] {
			if _, ok := prev[next]; ok {
				continue
			}
			prev[next] = cur
			queue = append(queue, next)
		}
	}
	return nil
}
