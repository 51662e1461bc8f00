package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/activity"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/rpggio/fabtrack/internal/domain/inspection"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// startedCheckpoint creates a "checked" unit and starts its inspection checkpoint.
func startedCheckpoint(t *testing.T, env *testEnv) activity.Instance {
	t.Helper()
	ctx := context.Background()
	u, err := env.engine.CreateUnit(ctx, admin, CreateUnitRequest{Tag: "C-1", Type: "checked"})
	require.NoError(t, err)
	view, err := env.engine.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, view.Activities, 1)
	in, err := env.engine.StartActivity(ctx, admin, view.Activities[0].ID)
	require.NoError(t, err)
	return *in
}

// createGated creates a "gated" unit: A1 must finish before its WIR checkpoint starts.
func createGated(t *testing.T, env *testEnv, tag string) (activity.Instance, activity.Instance) {
	t.Helper()
	ctx := context.Background()
	u, err := env.engine.CreateUnit(ctx, admin, CreateUnitRequest{Tag: tag, Type: "gated"})
	require.NoError(t, err)
	view, err := env.engine.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, view.Activities, 2)
	require.Equal(t, "WIR", view.Activities[1].Code)
	return view.Activities[0], view.Activities[1]
}

// finish takes a started or reopened instance to Completed.
func finish(t *testing.T, env *testEnv, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := env.engine.UpdateProgress(ctx, admin, id, decimal.NewFromInt(100))
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	_, err = env.engine.CompleteActivity(ctx, admin, id)
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
}

// rejectOpen opens a revision for activityID, fails one item and rejects it.
func rejectOpen(t *testing.T, env *testEnv, activityID string) *inspection.Record {
	t.Helper()
	ctx := context.Background()
	rec, err := env.engine.OpenInspection(ctx, admin, activityID)
	require.NoError(t, err)
	rec, err = env.engine.StartReview(ctx, admin, rec.ID)
	require.NoError(t, err)
	rec = resolveAll(t, env, rec, inspection.ItemPass, inspection.ItemFail, inspection.ItemPass)
	rec, err = env.engine.RejectInspection(ctx, admin, rec.ID, "QA-2 failed")
	require.NoError(t, err)
	return rec
}

func resolveAll(t *testing.T, env *testEnv, rec *inspection.Record, states ...inspection.ItemState) *inspection.Record {
	t.Helper()
	require.Len(t, states, len(rec.Items))
	var err error
	for i, st := range states {
		rec, err = env.engine.ResolveChecklistItem(context.Background(), admin, ResolveItemRequest{
			RecordID: rec.ID,
			ItemID:   rec.Items[i].ID,
			State:    string(st),
		})
		require.NoError(t, err)
	}
	return rec
}

func TestOpenInspectionSnapshotsChecklist(t *testing.T) {
	env := newTestEnv(t)
	in := startedCheckpoint(t, env)

	rec, err := env.engine.OpenInspection(context.Background(), admin, in.ID)
	require.NoError(t, err)
	require.Equal(t, "C-1/WIR-1/R1", rec.Number)
	require.Equal(t, inspection.StatusRequested, rec.Status)
	require.Equal(t, "t1", rec.CatalogVersion)
	require.Len(t, rec.Items, 3)
	require.Equal(t, "QA-1", rec.Items[0].ItemCode)
	require.Equal(t, "Quality", rec.Items[0].SectionTitle)

	_, err = env.engine.OpenInspection(context.Background(), admin, in.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.ErrorIs(t, err, inspection.ErrRevisionOpen)
}

func TestOpenInspectionRequiresCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	_, a1, _ := createPod(t, env, "U-1")

	_, err := env.engine.OpenInspection(context.Background(), admin, a1.ID)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCompleteCheckpointNeedsApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := startedCheckpoint(t, env)
	_, err := env.engine.UpdateProgress(ctx, admin, in.ID, decimal.NewFromInt(100))
	require.NoError(t, err)

	_, err = env.engine.CompleteActivity(ctx, admin, in.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.ErrorIs(t, err, activity.ErrInspectionNotApproved)
}

func TestFailingItemBlocksApprovalAndRejectionBlocksActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := startedCheckpoint(t, env)

	rec, err := env.engine.OpenInspection(ctx, admin, in.ID)
	require.NoError(t, err)
	rec, err = env.engine.StartReview(ctx, admin, rec.ID)
	require.NoError(t, err)
	rec = resolveAll(t, env, rec, inspection.ItemPass, inspection.ItemFail, inspection.ItemPass)

	_, err = env.engine.ApproveInspection(ctx, admin, rec.ID)
	require.ErrorIs(t, err, inspection.ErrChecklistNotClear)
	var ce *inspection.ChecklistError
	require.True(t, errors.As(err, &ce))
	require.Len(t, ce.Failing, 1)
	require.Equal(t, "QA-2", ce.Failing[0].ItemCode)
	require.Contains(t, err.Error(), "1 checklist item still failing")

	unchanged, err := env.engine.GetActivity(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, activity.StatusInProgress, unchanged.Status)

	_, err = env.engine.RejectInspection(ctx, admin, rec.ID, "")
	require.ErrorIs(t, err, domain.ErrValidation)

	rejected, err := env.engine.RejectInspection(ctx, admin, rec.ID, "weld porosity at QA-2")
	require.NoError(t, err)
	require.Equal(t, inspection.StatusRejected, rejected.Status)

	blocked, err := env.engine.GetActivity(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, activity.StatusBlocked, blocked.Status)
	require.Equal(t, activity.BlockInspectionRejected, blocked.BlockReason)
}

func TestRejectResubmitApproveRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := startedCheckpoint(t, env)

	first, err := env.engine.OpenInspection(ctx, admin, in.ID)
	require.NoError(t, err)
	first, err = env.engine.StartReview(ctx, admin, first.ID)
	require.NoError(t, err)
	first = resolveAll(t, env, first, inspection.ItemPass, inspection.ItemFail, inspection.ItemNA)
	_, err = env.engine.RejectInspection(ctx, admin, first.ID, "QA-2 failed")
	require.NoError(t, err)

	second, err := env.engine.OpenInspection(ctx, admin, in.ID)
	require.NoError(t, err)
	require.Equal(t, 2, second.Revision)
	require.Equal(t, 1, second.ResubmissionCount)
	require.Equal(t, "C-1/WIR-1/R2", second.Number)

	unblocked, err := env.engine.GetActivity(ctx, in.ID)
	require.NoError(t, err)
	require.Equal(t, activity.StatusInProgress, unblocked.Status)

	second, err = env.engine.StartReview(ctx, admin, second.ID)
	require.NoError(t, err)
	second = resolveAll(t, env, second, inspection.ItemPass, inspection.ItemPass, inspection.ItemNA)
	approved, err := env.engine.ApproveInspection(ctx, admin, second.ID)
	require.NoError(t, err)
	require.Equal(t, inspection.StatusApproved, approved.Status)

	history, err := env.engine.ListInspections(ctx, in.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	approvedCount := 0
	for _, r := range history {
		if r.Status == inspection.StatusApproved {
			approvedCount++
		}
	}
	require.Equal(t, 1, approvedCount)
	require.Equal(t, inspection.StatusRejected, history[0].Status)
	require.Equal(t, inspection.ItemFail, history[0].Items[1].State)

	_, err = env.engine.OpenInspection(ctx, admin, in.ID)
	require.ErrorIs(t, err, inspection.ErrAlreadyApproved)

	_, err = env.engine.UpdateProgress(ctx, admin, in.ID, decimal.NewFromInt(100))
	require.NoError(t, err)
	done, err := env.engine.CompleteActivity(ctx, admin, in.ID)
	require.NoError(t, err)
	require.Equal(t, activity.StatusCompleted, done.Status)
}

func TestResolveUnknownItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	in := startedCheckpoint(t, env)
	rec, err := env.engine.OpenInspection(ctx, admin, in.ID)
	require.NoError(t, err)

	_, err = env.engine.ResolveChecklistItem(ctx, admin, ResolveItemRequest{RecordID: rec.ID, ItemID: "nope", State: "pass"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.engine.ResolveChecklistItem(ctx, admin, ResolveItemRequest{RecordID: rec.ID, ItemID: rec.Items[0].ID, State: "maybe"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestResubmittingPendingCheckpointDoesNotStartIt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, wir := createGated(t, env, "G-1")

	_, err := env.engine.StartActivity(ctx, admin, wir.ID)
	require.ErrorIs(t, err, dependency.ErrDependencyNotSatisfied)

	rejectOpen(t, env, wir.ID)
	blocked, err := env.engine.GetActivity(ctx, wir.ID)
	require.NoError(t, err)
	require.Equal(t, activity.StatusBlocked, blocked.Status)
	require.Equal(t, activity.BlockInspectionRejected, blocked.BlockReason)

	_, err = env.engine.OpenInspection(ctx, admin, wir.ID)
	require.NoError(t, err)

	after, err := env.engine.GetActivity(ctx, wir.ID)
	require.NoError(t, err)
	require.Equal(t, activity.StatusPending, after.Status)
	require.Equal(t, activity.BlockNone, after.BlockReason)
	require.Nil(t, after.ActualStart)

	trail, err := env.engine.AuditTrail(ctx, audit.EntityActivity, wir.ID)
	require.NoError(t, err)
	last := trail[len(trail)-1]
	require.Equal(t, "unblocked", last.Action)
	require.Equal(t, string(activity.StatusPending), last.NewState)

	_, err = env.engine.StartActivity(ctx, admin, wir.ID)
	require.ErrorIs(t, err, dependency.ErrDependencyNotSatisfied)
}

func TestRejectionKeepsDependencyBlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a1, wir := createGated(t, env, "G-1")

	_, err := env.engine.StartActivity(ctx, admin, a1.ID)
	require.NoError(t, err)
	finish(t, env, a1.ID)
	_, err = env.engine.StartActivity(ctx, admin, wir.ID)
	require.NoError(t, err)

	rec, err := env.engine.OpenInspection(ctx, admin, wir.ID)
	require.NoError(t, err)
	rec, err = env.engine.StartReview(ctx, admin, rec.ID)
	require.NoError(t, err)
	rec = resolveAll(t, env, rec, inspection.ItemPass, inspection.ItemFail, inspection.ItemPass)

	_, err = env.engine.ReopenActivity(ctx, admin, a1.ID, "frame out of square")
	require.NoError(t, err)

	_, err = env.engine.RejectInspection(ctx, admin, rec.ID, "QA-2 failed")
	require.NoError(t, err)
	blocked, err := env.engine.GetActivity(ctx, wir.ID)
	require.NoError(t, err)
	require.Equal(t, activity.StatusBlocked, blocked.Status)
	require.Equal(t, activity.BlockDependencyReopened, blocked.BlockReason)

	_, err = env.engine.OpenInspection(ctx, admin, wir.ID)
	require.NoError(t, err)
	still, err := env.engine.GetActivity(ctx, wir.ID)
	require.NoError(t, err)
	require.Equal(t, activity.StatusBlocked, still.Status)
	require.Equal(t, activity.BlockDependencyReopened, still.BlockReason)

	_, err = env.engine.StartActivity(ctx, admin, wir.ID)
	require.ErrorIs(t, err, dependency.ErrDependencyNotSatisfied)

	env.clock.Advance(time.Hour)
	_, err = env.engine.CompleteActivity(ctx, admin, a1.ID)
	require.NoError(t, err)
	env.clock.Advance(time.Hour)
	restarted, err := env.engine.StartActivity(ctx, admin, wir.ID)
	require.NoError(t, err)
	require.Equal(t, activity.StatusInProgress, restarted.Status)
}

func TestReopenedPredecessorOverridesRejectionBlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a1, wir := createGated(t, env, "G-1")

	_, err := env.engine.StartActivity(ctx, admin, a1.ID)
	require.NoError(t, err)
	finish(t, env, a1.ID)
	_, err = env.engine.StartActivity(ctx, admin, wir.ID)
	require.NoError(t, err)
	rejectOpen(t, env, wir.ID)

	_, err = env.engine.ReopenActivity(ctx, admin, a1.ID, "frame out of square")
	require.NoError(t, err)
	blocked, err := env.engine.GetActivity(ctx, wir.ID)
	require.NoError(t, err)
	require.Equal(t, activity.BlockDependencyReopened, blocked.BlockReason)
	require.Nil(t, blocked.ActualStart)

	_, err = env.engine.OpenInspection(ctx, admin, wir.ID)
	require.NoError(t, err)
	still, err := env.engine.GetActivity(ctx, wir.ID)
	require.NoError(t, err)
	require.Equal(t, activity.StatusBlocked, still.Status)
	require.NotEqual(t, activity.StatusInProgress, still.Status)
}
