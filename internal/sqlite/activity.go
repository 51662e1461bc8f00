package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rpggio/fabtrack/internal/domain/activity"
	"github.com/rpggio/fabtrack/internal/repository"
)

// ActivityRepository implements repository.ActivityRepository for SQLite
type ActivityRepository struct {
	q Querier
}

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(q Querier) *ActivityRepository {
	return &ActivityRepository{q: q}
}

const activityColumns = `id, unit_id, definition_id, code, name, sequence, standard_duration, is_checkpoint,
	status, block_reason, hold_reason, progress, planned_start, planned_end, actual_start, actual_end,
	assigned_team, assigned_member, version, created_at, updated_at`

// Create inserts an instance. A sequence already used within the unit returns ErrDuplicate.
func (r *ActivityRepository) Create(ctx context.Context, in *activity.Instance) error {
	query := `INSERT INTO activity_instances (` + activityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		in.ID,
		in.UnitID,
		in.DefinitionID,
		in.Code,
		in.Name,
		in.Sequence,
		in.StandardDuration.String(),
		boolInt(in.IsCheckpoint),
		string(in.Status),
		string(in.BlockReason),
		in.HoldReason,
		in.Progress.String(),
		nullableTS(in.PlannedStart),
		nullableTS(in.PlannedEnd),
		nullableTS(in.ActualStart),
		nullableTS(in.ActualEnd),
		in.AssignedTeam,
		in.AssignedMember,
		in.Version,
		ts(in.CreatedAt),
		ts(in.UpdatedAt),
	)
	if err != nil {
		return writeErr("create activity", err)
	}
	return nil
}

// Get retrieves an instance by ID
func (r *ActivityRepository) Get(ctx context.Context, id string) (*activity.Instance, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activity_instances WHERE id = ?`, id)
	in, err := scanActivity(row)
	if notFound(err) {
		return nil, repository.ErrNotFound
	}
	return in, err
}

// ListByUnit returns a unit's instances ordered by sequence
func (r *ActivityRepository) ListByUnit(ctx context.Context, unitID string) ([]activity.Instance, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+activityColumns+` FROM activity_instances WHERE unit_id = ? ORDER BY sequence`, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var out []activity.Instance
	for rows.Next() {
		in, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// Update writes the instance's mutable state with optimistic concurrency control
func (r *ActivityRepository) Update(ctx context.Context, in *activity.Instance, expectedVersion int64) error {
	query := `
		UPDATE activity_instances
		SET status = ?, block_reason = ?, hold_reason = ?, progress = ?,
		    planned_start = ?, planned_end = ?, actual_start = ?, actual_end = ?,
		    assigned_team = ?, assigned_member = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.q.ExecContext(ctx, query,
		string(in.Status),
		string(in.BlockReason),
		in.HoldReason,
		in.Progress.String(),
		nullableTS(in.PlannedStart),
		nullableTS(in.PlannedEnd),
		nullableTS(in.ActualStart),
		nullableTS(in.ActualEnd),
		in.AssignedTeam,
		in.AssignedMember,
		expectedVersion+1,
		ts(in.UpdatedAt),
		in.ID,
		expectedVersion,
	)
	if err != nil {
		return writeErr("update activity", err)
	}
	if err := checkVersioned(ctx, r.q, "activity_instances", in.ID, result); err != nil {
		return err
	}
	in.Version = expectedVersion + 1
	return nil
}

func scanActivity(row rowScanner) (*activity.Instance, error) {
	var in activity.Instance
	var duration, progress, created, updated string
	var plannedStart, plannedEnd, actualStart, actualEnd *string
	var checkpoint int
	err := row.Scan(
		&in.ID,
		&in.UnitID,
		&in.DefinitionID,
		&in.Code,
		&in.Name,
		&in.Sequence,
		&duration,
		&checkpoint,
		&in.Status,
		&in.BlockReason,
		&in.HoldReason,
		&progress,
		&plannedStart,
		&plannedEnd,
		&actualStart,
		&actualEnd,
		&in.AssignedTeam,
		&in.AssignedMember,
		&in.Version,
		&created,
		&updated,
	)
	if err != nil {
		if notFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}
	in.IsCheckpoint = checkpoint != 0
	if in.StandardDuration, err = parseDecimal(duration); err != nil {
		return nil, err
	}
	if in.Progress, err = parseDecimal(progress); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		src *string
		dst **time.Time
	}{
		{plannedStart, &in.PlannedStart},
		{plannedEnd, &in.PlannedEnd},
		{actualStart, &in.ActualStart},
		{actualEnd, &in.ActualEnd},
	} {
		if *f.dst, err = parseNullTS(f.src); err != nil {
			return nil, err
		}
	}
	if in.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if in.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &in, nil
}
