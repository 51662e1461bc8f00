package workflow

import (
	"context"

	"github.com/rpggio/fabtrack/internal/domain/access"
	"github.com/rpggio/fabtrack/internal/domain/activity"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/rpggio/fabtrack/internal/domain/inspection"
	"github.com/shopspring/decimal"
)

type activityMutation func(t *txn, cur activity.Instance) (activity.Instance, error)

// transitionActivity runs one guarded activity change and schedules its unit for recompute.
func (e *Engine) transitionActivity(ctx context.Context, op string, actor access.Actor, perm access.Permission, id, action, reason string, mutate activityMutation, after func(t *txn, next activity.Instance) error) (*activity.Instance, error) {
	var out activity.Instance
	err := e.run(ctx, op, actor, perm, func(t *txn) error {
		next, err := GuardedTransition(t, t.activityGuard(id, action, reason, mutate))
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

func (t *txn) activityGuard(id, action, reason string, mutate activityMutation) Guard[activity.Instance] {
	return Guard[activity.Instance]{
		Load: func() (activity.Instance, error) {
			in, err := t.loadInstance(id)
			if err != nil {
				return activity.Instance{}, err
			}
			return *in, nil
		},
		Mutate: func(cur activity.Instance) (activity.Instance, audit.Draft, error) {
			next, err := mutate(t, cur)
			if err != nil {
				return cur, audit.Draft{}, err
			}
			next.UpdatedAt = t.now
			d := activityDraft(cur, next, action)
			d.Reason = reason
			return next, d, nil
		},
		Save: func(cur activity.Instance, next *activity.Instance) error {
			if err := t.tx.Activities().Update(t.ctx, next, cur.Version); err != nil {
				return err
			}
			t.touch(next.UnitID)
			return nil
		},
	}
}

func activityDraft(cur, next activity.Instance, action string) audit.Draft {
	d := audit.Draft{
		EntityType: audit.EntityActivity,
		EntityID:   cur.ID,
		Action:     action,
		PriorState: string(cur.Status),
		NewState:   string(next.Status),
		Details:    map[string]string{},
	}
	if !cur.Progress.Equal(next.Progress) {
		d.Details["prior_progress"] = cur.Progress.String()
		d.Details["progress"] = next.Progress.String()
	}
	if next.BlockReason != "" {
		d.Details["block_reason"] = string(next.BlockReason)
	}
	if len(d.Details) == 0 {
		d.Details = nil
	}
	return d
}

// StartActivity moves a Pending instance to InProgress when its dependencies allow it.
func (e *Engine) StartActivity(ctx context.Context, actor access.Actor, id string) (*activity.Instance, error) {
	return e.transitionActivity(ctx, "start_activity", actor, access.PermActivityStart, id, "started", "",
		func(t *txn, cur activity.Instance) (activity.Instance, error) {
			instances, edges, err := t.snapshot(cur.UnitID)
			if err != nil {
				return cur, err
			}
			return activity.Start(cur, activity.Snapshot(instances, edges), t.resolver(), t.now)
		}, nil)
}

// UpdateProgress records a progress report. Progress never decreases here.
func (e *Engine) UpdateProgress(ctx context.Context, actor access.Actor, id string, pct decimal.Decimal) (*activity.Instance, error) {
	return e.transitionActivity(ctx, "update_progress", actor, access.PermActivityProgress, id, "progress_updated", "",
		func(_ *txn, cur activity.Instance) (activity.Instance, error) {
			return activity.UpdateProgress(cur, pct)
		}, nil)
}

// CorrectProgress overrides progress, including a decrease, with a recorded reason.
func (e *Engine) CorrectProgress(ctx context.Context, actor access.Actor, id string, pct decimal.Decimal, reason string) (*activity.Instance, error) {
	return e.transitionActivity(ctx, "correct_progress", actor, access.PermActivityCorrect, id, "progress_corrected", reason,
		func(_ *txn, cur activity.Instance) (activity.Instance, error) {
			return activity.CorrectProgress(cur, pct, reason)
		}, nil)
}

// HoldActivity pauses in-progress work.
func (e *Engine) HoldActivity(ctx context.Context, actor access.Actor, id, reason string) (*activity.Instance, error) {
	return e.transitionActivity(ctx, "hold_activity", actor, access.PermActivityHold, id, "held", reason,
		func(_ *txn, cur activity.Instance) (activity.Instance, error) {
			return activity.Hold(cur, reason)
		}, nil)
}

// ResumeActivity returns held work to InProgress.
func (e *Engine) ResumeActivity(ctx context.Context, actor access.Actor, id string) (*activity.Instance, error) {
	return e.transitionActivity(ctx, "resume_activity", actor, access.PermActivityHold, id, "resumed", "",
		func(_ *txn, cur activity.Instance) (activity.Instance, error) {
			return activity.Resume(cur)
		}, nil)
}

// CompleteActivity finishes work at 100%. Checkpoints need an Approved inspection revision.
func (e *Engine) CompleteActivity(ctx context.Context, actor access.Actor, id string) (*activity.Instance, error) {
	return e.transitionActivity(ctx, "complete_activity", actor, access.PermActivityComplete, id, "completed", "",
		func(t *txn, cur activity.Instance) (activity.Instance, error) {
			approved := false
			if cur.IsCheckpoint {
				history, err := t.tx.Inspections().ListByActivity(t.ctx, cur.ID)
				if err != nil {
					return cur, err
				}
				approved = inspection.Approved(history)
			}
			instances, edges, err := t.snapshot(cur.UnitID)
			if err != nil {
				return cur, err
			}
			return activity.Complete(cur, activity.Snapshot(instances, edges), t.resolver(), approved, t.now)
		}, nil)
}

// ReopenActivity returns completed work to InProgress and blocks every started
// transitive dependent in the same transaction.
func (e *Engine) ReopenActivity(ctx context.Context, actor access.Actor, id, reason string) (*activity.Instance, error) {
	return e.transitionActivity(ctx, "reopen_activity", actor, access.PermActivityReopen, id, "reopened", reason,
		func(_ *txn, cur activity.Instance) (activity.Instance, error) {
			return activity.Reopen(cur, reason)
		},
		func(t *txn, reopened activity.Instance) error {
			return t.blockDownstream(reopened)
		})
}

// AssignActivity sets the responsible team and member.
func (e *Engine) AssignActivity(ctx context.Context, actor access.Actor, id, team, member string) (*activity.Instance, error) {
	return e.transitionActivity(ctx, "assign_activity", actor, access.PermActivityAssign, id, "assigned", "",
		func(_ *txn, cur activity.Instance) (activity.Instance, error) {
			return activity.Assign(cur, team, member)
		}, nil)
}

// blockDownstream cascades Blocked(dependency_reopened) to started dependents. Already
// blocked instances keep their block.
func (t *txn) blockDownstream(reopened activity.Instance) error {
	instances, edges, err := t.snapshot(reopened.UnitID)
	if err != nil {
		return err
	}
	byID := make(map[string]activity.Instance, len(instances))
	for _, in := range instances {
		byID[in.ID] = in
	}
	for _, id := range dependency.NewGraph(edges).Downstream(reopened.ID) {
		in, ok := byID[id]
		if !ok || in.ActualStart == nil {
			continue
		}
		if err := t.systemBlock(in, activity.BlockDependencyReopened, reopened.ID); err != nil {
			return err
		}
	}
	return nil
}

// systemBlock is a cascade transition recorded under the system actor.
func (t *txn) systemBlock(in activity.Instance, reason activity.BlockReason, triggeredBy string) error {
	next, changed := activity.Block(in, reason)
	if !changed {
		return nil
	}
	next.UpdatedAt = t.now
	if err := t.tx.Activities().Update(t.ctx, &next, in.Version); err != nil {
		return err
	}
	t.touch(in.UnitID)
	d := activityDraft(in, next, "blocked")
	d.ActorID = access.SystemActorID
	if d.Details == nil {
		d.Details = map[string]string{}
	}
	d.Details["triggered_by"] = triggeredBy
	d.Details["requested_by"] = t.actor.ID
	return t.audit(d)
}
