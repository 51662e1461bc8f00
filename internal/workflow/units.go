package workflow

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/access"
	"github.com/rpggio/fabtrack/internal/domain/activity"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/catalog"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/rpggio/fabtrack/internal/domain/unit"
	"github.com/rpggio/fabtrack/internal/repository"
	"github.com/shopspring/decimal"
)

const sequenceStep = 10

// CreateUnitRequest contains fields for creating a production unit
type CreateUnitRequest struct {
	Tag        string            `json:"tag"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Location   string            `json:"location,omitempty"`
}

// CreateUnit registers a unit and instantiates the catalog plan for its type.
func (e *Engine) CreateUnit(ctx context.Context, actor access.Actor, req CreateUnitRequest) (*unit.Unit, error) {
	tag := strings.TrimSpace(req.Tag)
	if tag == "" {
		return nil, domain.Validation("tag", "required")
	}
	unitType := strings.TrimSpace(req.Type)
	if unitType == "" {
		return nil, domain.Validation("type", "required")
	}

	var out *unit.Unit
	err := e.run(ctx, "create_unit", actor, access.PermUnitCreate, func(t *txn) error {
		if _, err := t.tx.Units().GetByTag(ctx, tag); err == nil {
			return domain.Validation("tag", "already in use: "+tag)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		plan, err := e.catalog.Plan(unitType, req.Attributes)
		if err != nil {
			return domain.Validation("attributes", err.Error())
		}

		u := unit.Unit{
			ID:         e.newID(),
			Tag:        tag,
			Type:       unitType,
			Attributes: req.Attributes,
			Status:     unit.StatusNotStarted,
			Progress:   decimal.Zero,
			Location:   strings.TrimSpace(req.Location),
			Version:    1,
			CreatedAt:  t.now,
			UpdatedAt:  t.now,
		}
		if err := t.tx.Units().Create(ctx, &u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return domain.Validation("tag", "already in use: "+tag)
			}
			return err
		}
		err = t.audit(audit.Draft{
			EntityType: audit.EntityUnit,
			EntityID:   u.ID,
			Action:     "created",
			NewState:   string(u.Status),
			Details:    map[string]string{"tag": u.Tag, "type": u.Type},
		})
		if err != nil {
			return err
		}

		if err := t.instantiatePlan(u.ID, plan); err != nil {
			return err
		}
		updated, err := t.recompute(u.ID)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *txn) instantiatePlan(unitID string, plan []catalog.PlannedActivity) error {
	graph := dependency.NewGraph(nil)
	byCode := make(map[string]string, len(plan))
	for i, step := range plan {
		in, err := t.createInstance(unitID, step.Definition, (i+1)*sequenceStep)
		if err != nil {
			return err
		}
		byCode[in.Code] = in.ID

		for _, d := range step.DependsOn {
			edge := dependency.Edge{
				ID:            t.e.newID(),
				UnitID:        unitID,
				PredecessorID: byCode[d.Activity],
				DependentID:   in.ID,
				Type:          d.Type,
				LagDays:       d.LagDays,
				CreatedAt:     t.now,
			}
			if edge.Type == "" {
				edge.Type = dependency.FinishToStart
			}
			if err := graph.Add(edge); err != nil {
				return err
			}
			if err := t.createEdge(edge); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *txn) createInstance(unitID string, def catalog.Definition, sequence int) (activity.Instance, error) {
	def, err := t.ensureDefinition(def)
	if err != nil {
		return activity.Instance{}, err
	}
	in := activity.Instance{
		ID:               t.e.newID(),
		UnitID:           unitID,
		DefinitionID:     def.ID,
		Code:             def.Code,
		Name:             def.Name,
		Sequence:         sequence,
		StandardDuration: def.StandardDuration,
		IsCheckpoint:     def.IsCheckpoint,
		Status:           activity.StatusPending,
		Progress:         decimal.Zero,
		Version:          1,
		CreatedAt:        t.now,
		UpdatedAt:        t.now,
	}
	if err := t.tx.Activities().Create(t.ctx, &in); err != nil {
		return activity.Instance{}, err
	}
	err = t.audit(audit.Draft{
		EntityType: audit.EntityActivity,
		EntityID:   in.ID,
		Action:     "created",
		NewState:   string(in.Status),
		Details: map[string]string{
			"unit_id":       unitID,
			"definition_id": def.ID,
		},
	})
	return in, err
}

func (t *txn) createEdge(edge dependency.Edge) error {
	if err := t.tx.Dependencies().Create(t.ctx, edge); err != nil {
		return err
	}
	return t.audit(audit.Draft{
		EntityType: audit.EntityDependency,
		EntityID:   edge.ID,
		Action:     "created",
		NewState:   "active",
		Details: map[string]string{
			"predecessor_id": edge.PredecessorID,
			"dependent_id":   edge.DependentID,
			"type":           string(edge.Type),
			"lag_days":       strconv.Itoa(edge.LagDays),
		},
	})
}

// AddActivityRequest adds an ad-hoc catalog activity to an existing unit
type AddActivityRequest struct {
	UnitID string `json:"unit_id"`
	Code   string `json:"code"`
}

// AddActivity appends a catalog activity after the unit's existing instances.
func (e *Engine) AddActivity(ctx context.Context, actor access.Actor, req AddActivityRequest) (*activity.Instance, error) {
	def, err := e.catalog.Definition(strings.TrimSpace(req.Code))
	if err != nil {
		return nil, domain.Validation("code", err.Error())
	}

	var out activity.Instance
	err = e.run(ctx, "add_activity", actor, access.PermActivityCreate, func(t *txn) error {
		if _, err := t.loadUnit(req.UnitID); err != nil {
			return err
		}
		existing, err := t.tx.Activities().ListByUnit(ctx, req.UnitID)
		if err != nil {
			return err
		}
		next := sequenceStep
		for _, in := range existing {
			if in.Sequence >= next {
				next = in.Sequence + sequenceStep
			}
		}
		out, err = t.createInstance(req.UnitID, def, next)
		if err != nil {
			return err
		}
		t.touch(req.UnitID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MoveUnit updates the unit's physical location reference.
func (e *Engine) MoveUnit(ctx context.Context, actor access.Actor, unitID, location string) (*unit.Unit, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, domain.Validation("location", "required")
	}

	var out unit.Unit
	err := e.run(ctx, "move_unit", actor, access.PermUnitUpdateStatus, func(t *txn) error {
		next, err := GuardedTransition(t, Guard[unit.Unit]{
			Load: func() (unit.Unit, error) {
				u, err := t.loadUnit(unitID)
				if err != nil {
					return unit.Unit{}, err
				}
				return *u, nil
			},
			Mutate: func(cur unit.Unit) (unit.Unit, audit.Draft, error) {
				if cur.Location == location {
					return cur, audit.Draft{}, nil
				}
				next := cur
				next.Location = location
				next.UpdatedAt = t.now
				return next, audit.Draft{
					EntityType: audit.EntityUnit,
					EntityID:   cur.ID,
					Action:     "moved",
					PriorState: string(cur.Status),
					NewState:   string(next.Status),
					Details:    map[string]string{"from": cur.Location, "to": location},
				}, nil
			},
			Save: func(cur unit.Unit, next *unit.Unit) error {
				return t.tx.Units().Update(ctx, next, cur.Version)
			},
		})
		out = next
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecomputeUnit re-derives status and progress. Calling it twice in a row is a no-op.
func (e *Engine) RecomputeUnit(ctx context.Context, actor access.Actor, unitID string) (*unit.Unit, error) {
	var out *unit.Unit
	err := e.run(ctx, "recompute_unit", actor, access.PermUnitUpdateStatus, func(t *txn) error {
		u, err := t.recompute(unitID)
		out = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
