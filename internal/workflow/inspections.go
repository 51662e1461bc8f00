package workflow

import (
	"context"
	"strconv"

	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/access"
	"github.com/rpggio/fabtrack/internal/domain/activity"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/catalog"
	"github.com/rpggio/fabtrack/internal/domain/inspection"
)

// OpenInspection issues the first revision for a checkpoint activity, or a new revision
// after a rejection. Checklist items are copied from the stored catalog version the
// activity was instantiated from.
func (e *Engine) OpenInspection(ctx context.Context, actor access.Actor, activityID string) (*inspection.Record, error) {
	var out inspection.Record
	err := e.run(ctx, "open_inspection", actor, access.PermInspectionCreate, func(t *txn) error {
		in, err := t.loadInstance(activityID)
		if err != nil {
			return err
		}
		if !in.IsCheckpoint {
			return domain.Validation("activity_id", "activity is not an inspection checkpoint")
		}
		def, err := t.tx.Definitions().Get(ctx, in.DefinitionID)
		if err != nil {
			return mapNotFound(err, "definition", in.DefinitionID)
		}
		u, err := t.loadUnit(in.UnitID)
		if err != nil {
			return err
		}
		history, err := t.tx.Inspections().ListByActivity(ctx, in.ID)
		if err != nil {
			return err
		}
		sections, err := t.tx.Definitions().ListSections(ctx, def.CatalogVersion)
		if err != nil {
			return err
		}

		rec, err := inspection.Next(history, inspection.OpenRequest{
			UnitID:         u.ID,
			UnitTag:        u.Tag,
			ActivityID:     in.ID,
			CheckpointCode: def.CheckpointCode,
			CatalogVersion: def.CatalogVersion,
			RequestedBy:    actor.ID,
			Templates:      templates(*def, sections),
		}, e.newID, t.now)
		if err != nil {
			return err
		}
		rec.Version = 1
		if err := t.tx.Inspections().Create(ctx, &rec); err != nil {
			return err
		}
		err = t.audit(audit.Draft{
			EntityType: audit.EntityInspection,
			EntityID:   rec.ID,
			Action:     "opened",
			NewState:   string(rec.Status),
			Details: map[string]string{
				"number":             rec.Number,
				"revision":           strconv.Itoa(rec.Revision),
				"resubmission_count": strconv.Itoa(rec.ResubmissionCount),
				"activity_id":        in.ID,
			},
		})
		if err != nil {
			return err
		}

		if in.Status == activity.StatusBlocked && in.BlockReason == activity.BlockInspectionRejected {
			if err := t.systemUnblock(*in, rec.ID); err != nil {
				return err
			}
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// templates expands a definition's sections, in definition order, from stored rows.
func templates(def catalog.Definition, sections []catalog.Section) []inspection.ItemTemplate {
	byCode := make(map[string]catalog.Section, len(sections))
	for _, s := range sections {
		byCode[s.Code] = s
	}
	var out []inspection.ItemTemplate
	for _, code := range def.ChecklistSections {
		s := byCode[code]
		for _, it := range s.Items {
			out = append(out, inspection.ItemTemplate{
				SectionCode:  s.Code,
				SectionTitle: s.Title,
				ItemCode:     it.Code,
				Description:  it.Description,
			})
		}
	}
	return out
}

// systemUnblock re-evaluates an instance blocked by a rejection against the unit's
// current graph. The outcome is audited as "unblocked" or, when predecessors no longer
// permit a start, "blocked".
func (t *txn) systemUnblock(in activity.Instance, triggeredBy string) error {
	instances, edges, err := t.snapshot(in.UnitID)
	if err != nil {
		return err
	}
	next, err := activity.Unblock(in, activity.Snapshot(instances, edges), t.resolver())
	if err != nil {
		return err
	}
	action := "unblocked"
	if next.Status == activity.StatusBlocked {
		action = "blocked"
	}
	next.UpdatedAt = t.now
	if err := t.tx.Activities().Update(t.ctx, &next, in.Version); err != nil {
		return err
	}
	t.touch(in.UnitID)
	d := activityDraft(in, next, action)
	d.ActorID = access.SystemActorID
	if d.Details == nil {
		d.Details = map[string]string{}
	}
	d.Details["triggered_by"] = triggeredBy
	d.Details["requested_by"] = t.actor.ID
	return t.audit(d)
}

type recordMutation func(t *txn, cur inspection.Record) (inspection.Record, error)

func (e *Engine) transitionInspection(ctx context.Context, op string, actor access.Actor, perm access.Permission, id, action, reason string, details map[string]string, mutate recordMutation, after func(t *txn, next inspection.Record) error) (*inspection.Record, error) {
	var out inspection.Record
	err := e.run(ctx, op, actor, perm, func(t *txn) error {
		next, err := GuardedTransition(t, Guard[inspection.Record]{
			Load: func() (inspection.Record, error) {
				rec, err := t.loadInspection(id)
				if err != nil {
					return inspection.Record{}, err
				}
				return *rec, nil
			},
			Mutate: func(cur inspection.Record) (inspection.Record, audit.Draft, error) {
				next, err := mutate(t, cur)
				if err != nil {
					return cur, audit.Draft{}, err
				}
				return next, audit.Draft{
					EntityType: audit.EntityInspection,
					EntityID:   cur.ID,
					Action:     action,
					PriorState: string(cur.Status),
					NewState:   string(next.Status),
					Reason:     reason,
					Details:    details,
				}, nil
			},
			Save: func(cur inspection.Record, next *inspection.Record) error {
				return t.tx.Inspections().Update(ctx, next, cur.Version)
			},
		})
		if err != nil {
			return err
		}
		if after != nil {
			if err := after(t, next); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// StartReview moves a requested record under review.
func (e *Engine) StartReview(ctx context.Context, actor access.Actor, recordID string) (*inspection.Record, error) {
	return e.transitionInspection(ctx, "start_review", actor, access.PermInspectionReview, recordID, "review_started", "", nil,
		func(t *txn, cur inspection.Record) (inspection.Record, error) {
			return inspection.StartReview(cur, actor.ID, t.now)
		}, nil)
}

// ResolveItemRequest records one checklist outcome
type ResolveItemRequest struct {
	RecordID string `json:"record_id"`
	ItemID   string `json:"item_id"`
	State    string `json:"state"`
	Note     string `json:"note,omitempty"`
}

// ResolveChecklistItem records pass, fail or na against an item of an open record.
func (e *Engine) ResolveChecklistItem(ctx context.Context, actor access.Actor, req ResolveItemRequest) (*inspection.Record, error) {
	state, ok := inspection.ParseItemState(req.State)
	if !ok {
		return nil, domain.Validation("state", "must be pass, fail or na")
	}
	details := map[string]string{"item_id": req.ItemID, "state": string(state)}
	return e.transitionInspection(ctx, "resolve_checklist_item", actor, access.PermInspectionReview, req.RecordID, "item_resolved", req.Note, details,
		func(t *txn, cur inspection.Record) (inspection.Record, error) {
			return inspection.Resolve(cur, req.ItemID, state, req.Note, actor.ID, t.now)
		}, nil)
}

// ApproveInspection approves a record whose items are all pass or na.
func (e *Engine) ApproveInspection(ctx context.Context, actor access.Actor, recordID string) (*inspection.Record, error) {
	return e.transitionInspection(ctx, "approve_inspection", actor, access.PermInspectionApprove, recordID, "approved", "", nil,
		func(t *txn, cur inspection.Record) (inspection.Record, error) {
			return inspection.Approve(cur, actor.ID, t.now)
		}, nil)
}

// RejectInspection rejects a record and blocks its activity until a new revision is opened.
func (e *Engine) RejectInspection(ctx context.Context, actor access.Actor, recordID, reason string) (*inspection.Record, error) {
	return e.transitionInspection(ctx, "reject_inspection", actor, access.PermInspectionReject, recordID, "rejected", reason, nil,
		func(t *txn, cur inspection.Record) (inspection.Record, error) {
			return inspection.Reject(cur, reason, actor.ID, t.now)
		},
		func(t *txn, rejected inspection.Record) error {
			in, err := t.loadInstance(rejected.ActivityID)
			if err != nil {
				return err
			}
			if in.Status == activity.StatusCompleted {
				return nil
			}
			return t.systemBlock(*in, activity.BlockInspectionRejected, rejected.ID)
		})
}

// GetInspection returns one record with its checklist.
func (e *Engine) GetInspection(ctx context.Context, id string) (*inspection.Record, error) {
	var out *inspection.Record
	err := e.view(ctx, "get_inspection", func(t *txn) error {
		rec, err := t.loadInspection(id)
		out = rec
		return err
	})
	return out, err
}

// ListInspections returns every revision for an activity, oldest first.
func (e *Engine) ListInspections(ctx context.Context, activityID string) ([]inspection.Record, error) {
	var out []inspection.Record
	err := e.view(ctx, "list_inspections", func(t *txn) error {
		if _, err := t.loadInstance(activityID); err != nil {
			return err
		}
		recs, err := t.tx.Inspections().ListByActivity(ctx, activityID)
		out = recs
		return err
	})
	return out, err
}
