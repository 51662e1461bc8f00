package workflow

import (
	"context"

	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/access"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
)

// AddDependencyRequest contains fields for a new precedence constraint
type AddDependencyRequest struct {
	PredecessorID string          `json:"predecessor_id"`
	DependentID   string          `json:"dependent_id"`
	Type          dependency.Type `json:"type"`
	LagDays       int             `json:"lag_days"`
}

// AddDependency inserts an edge between two instances of the same unit. An edge that
// would close a cycle fails and leaves the graph unchanged.
func (e *Engine) AddDependency(ctx context.Context, actor access.Actor, req AddDependencyRequest) (*dependency.Edge, error) {
	if req.Type == "" {
		req.Type = dependency.FinishToStart
	}

	var out dependency.Edge
	err := e.run(ctx, "add_dependency", actor, access.PermDependencyManage, func(t *txn) error {
		pred, err := t.loadInstance(req.PredecessorID)
		if err != nil {
			return err
		}
		dep, err := t.loadInstance(req.DependentID)
		if err != nil {
			return err
		}
		if pred.UnitID != dep.UnitID {
			return domain.Validation("dependent_id", "predecessor and dependent belong to different units")
		}
		edges, err := t.tx.Dependencies().ListByUnit(ctx, pred.UnitID)
		if err != nil {
			return err
		}
		edge := dependency.Edge{
			ID:            e.newID(),
			UnitID:        pred.UnitID,
			PredecessorID: pred.ID,
			DependentID:   dep.ID,
			Type:          req.Type,
			LagDays:       req.LagDays,
			CreatedAt:     t.now,
		}
		if err := dependency.NewGraph(edges).Validate(edge); err != nil {
			return err
		}
		if err := t.createEdge(edge); err != nil {
			return err
		}
		out = edge
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveDependency deletes an edge.
func (e *Engine) RemoveDependency(ctx context.Context, actor access.Actor, edgeID string) error {
	return e.run(ctx, "remove_dependency", actor, access.PermDependencyManage, func(t *txn) error {
		edge, err := t.tx.Dependencies().Get(ctx, edgeID)
		if err != nil {
			return mapNotFound(err, "dependency", edgeID)
		}
		if err := t.tx.Dependencies().Delete(ctx, edgeID); err != nil {
			return mapNotFound(err, "dependency", edgeID)
		}
		return t.audit(audit.Draft{
			EntityType: audit.EntityDependency,
			EntityID:   edge.ID,
			Action:     "removed",
			PriorState: "active",
			NewState:   "removed",
			Details: map[string]string{
				"predecessor_id": edge.PredecessorID,
				"dependent_id":   edge.DependentID,
			},
		})
	})
}

// GraphView returns the unit's instances and edges for visualization.
func (e *Engine) GraphView(ctx context.Context, unitID string) (*dependency.View, error) {
	view := &dependency.View{UnitID: unitID, Nodes: []dependency.ViewNode{}, Edges: []dependency.ViewEdge{}}
	err := e.view(ctx, "graph_view", func(t *txn) error {
		if _, err := t.loadUnit(unitID); err != nil {
			return err
		}
		instances, edges, err := t.snapshot(unitID)
		if err != nil {
			return err
		}
		for _, in := range instances {
			view.Nodes = append(view.Nodes, dependency.ViewNode{
				ID:       in.ID,
				Code:     in.Code,
				Name:     in.Name,
				Sequence: in.Sequence,
				Status:   string(in.Status),
				Progress: in.Progress.String(),
			})
		}
		for _, ed := range edges {
			view.Edges = append(view.Edges, dependency.ViewEdge{
				ID:            ed.ID,
				PredecessorID: ed.PredecessorID,
				DependentID:   ed.DependentID,
				Type:          ed.Type,
				LagDays:       ed.LagDays,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}
