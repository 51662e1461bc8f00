// Package dependency resolves precedence constraints between activity instances of one
// production unit.
package dependency

import "time"

// Type is the kind of precedence constraint an edge enforces.
type Type string

const (
	FinishToStart Type = "FinishToStart"
	StartToStart  Type = "StartToStart"
)

// Valid reports whether t is a known dependency type.
func (t Type) Valid() bool {
	return t == FinishToStart || t == StartToStart
}

// Edge is a directed predecessor -> dependent constraint.
type Edge struct {
	ID            string    `json:"id"`
	UnitID        string    `json:"unit_id"`
	PredecessorID string    `json:"predecessor_id"`
	DependentID   string    `json:"dependent_id"`
	Type          Type      `json:"type"`
	LagDays       int       `json:"lag_days"`
	CreatedAt     time.Time `json:"created_at"`
}

// Lag returns the edge lag as a duration.
func (e Edge) Lag() time.Duration {
	return time.Duration(e.LagDays) * 24 * time.Hour
}

// Node is the resolver's view of one activity instance: only its actual dates matter.
type Node struct {
	ID          string     `json:"id"`
	ActualStart *time.Time `json:"actual_start,omitempty"`
	ActualEnd   *time.Time `json:"actual_end,omitempty"`
}

// Snapshot is the committed state of one unit's instances and edges.
type Snapshot struct {
	Nodes map[string]Node
	Edges []Edge
}

// ViewNode is one instance in the visualization projection.
type ViewNode struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	Status   string `json:"status"`
	Progress string `json:"progress"`
}

// ViewEdge is one constraint in the visualization projection.
type ViewEdge struct {
	ID            string `json:"id"`
	PredecessorID string `json:"predecessor_id"`
	DependentID   string `json:"dependent_id"`
	Type          Type   `json:"type"`
	LagDays       int    `json:"lag_days"`
}

// View is the dependency-graph projection for one unit.
type View struct {
	UnitID string     `json:"unit_id"`
	Nodes  []ViewNode `json:"nodes"`
	Edges  []ViewEdge `json:"edges"`
}
