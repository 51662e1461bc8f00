package sqlite

import (
	"context"
	"fmt"

	"github.com/rpggio/fabtrack/internal/domain/inspection"
	"github.com/rpggio/fabtrack/internal/repository"
)

// InspectionRepository implements repository.InspectionRepository for SQLite
type InspectionRepository struct {
	q Querier
}

// NewInspectionRepository creates a new InspectionRepository
func NewInspectionRepository(q Querier) *InspectionRepository {
	return &InspectionRepository{q: q}
}

const inspectionColumns = `id, number, unit_id, activity_id, checkpoint_code, catalog_version, revision,
	resubmission_count, status, rejection_reason, requested_by, reviewed_by, decided_by, decided_at,
	version, created_at, updated_at`

const itemColumns = `id, record_id, position, section_code, section_title, item_code, description,
	state, note, resolved_by, resolved_at`

// Create inserts a record together with its checklist snapshot
func (r *InspectionRepository) Create(ctx context.Context, rec *inspection.Record) error {
	query := `INSERT INTO inspection_records (` + inspectionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		rec.ID,
		rec.Number,
		rec.UnitID,
		rec.ActivityID,
		rec.CheckpointCode,
		rec.CatalogVersion,
		rec.Revision,
		rec.ResubmissionCount,
		string(rec.Status),
		rec.RejectionReason,
		rec.RequestedBy,
		rec.ReviewedBy,
		rec.DecidedBy,
		nullableTS(rec.DecidedAt),
		rec.Version,
		ts(rec.CreatedAt),
		ts(rec.UpdatedAt),
	)
	if err != nil {
		return writeErr("create inspection", err)
	}

	for _, it := range rec.Items {
		_, err := r.q.ExecContext(ctx,
			`INSERT INTO checklist_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID,
			rec.ID,
			it.Position,
			it.SectionCode,
			it.SectionTitle,
			it.ItemCode,
			it.Description,
			string(it.State),
			it.Note,
			it.ResolvedBy,
			nullableTS(it.ResolvedAt),
		)
		if err != nil {
			return writeErr("create checklist item", err)
		}
	}
	return nil
}

// Get retrieves a record and its items
func (r *InspectionRepository) Get(ctx context.Context, id string) (*inspection.Record, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+inspectionColumns+` FROM inspection_records WHERE id = ?`, id)
	rec, err := scanInspection(row)
	if notFound(err) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.Items, err = r.items(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByActivity returns every revision for an activity ordered by revision
func (r *InspectionRepository) ListByActivity(ctx context.Context, activityID string) ([]inspection.Record, error) {
	return r.list(ctx, `WHERE activity_id = ? ORDER BY revision`, activityID)
}

// ListByUnit returns every record for a unit
func (r *InspectionRepository) ListByUnit(ctx context.Context, unitID string) ([]inspection.Record, error) {
	return r.list(ctx, `WHERE unit_id = ? ORDER BY checkpoint_code, revision`, unitID)
}

// Update writes status and item outcomes with optimistic concurrency control
func (r *InspectionRepository) Update(ctx context.Context, rec *inspection.Record, expectedVersion int64) error {
	query := `
		UPDATE inspection_records
		SET status = ?, rejection_reason = ?, reviewed_by = ?, decided_by = ?, decided_at = ?,
		    version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.q.ExecContext(ctx, query,
		string(rec.Status),
		rec.RejectionReason,
		rec.ReviewedBy,
		rec.DecidedBy,
		nullableTS(rec.DecidedAt),
		expectedVersion+1,
		ts(rec.UpdatedAt),
		rec.ID,
		expectedVersion,
	)
	if err != nil {
		return writeErr("update inspection", err)
	}
	if err := checkVersioned(ctx, r.q, "inspection_records", rec.ID, result); err != nil {
		return err
	}

	for _, it := range rec.Items {
		_, err := r.q.ExecContext(ctx,
			`UPDATE checklist_items SET state = ?, note = ?, resolved_by = ?, resolved_at = ? WHERE id = ? AND record_id = ?`,
			string(it.State), it.Note, it.ResolvedBy, nullableTS(it.ResolvedAt), it.ID, rec.ID)
		if err != nil {
			return writeErr("update checklist item", err)
		}
	}
	rec.Version = expectedVersion + 1
	return nil
}

func (r *InspectionRepository) list(ctx context.Context, clause string, arg any) ([]inspection.Record, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+inspectionColumns+` FROM inspection_records `+clause, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list inspections: %w", err)
	}
	var out []inspection.Record
	for rows.Next() {
		rec, err := scanInspection(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Items load after the cursor closes.
	for i := range out {
		if out[i].Items, err = r.items(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *InspectionRepository) items(ctx context.Context, recordID string) ([]inspection.ChecklistItem, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM checklist_items WHERE record_id = ? ORDER BY position`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checklist items: %w", err)
	}
	defer rows.Close()

	var out []inspection.ChecklistItem
	for rows.Next() {
		var it inspection.ChecklistItem
		var resolvedAt *string
		err := rows.Scan(&it.ID, &it.RecordID, &it.Position, &it.SectionCode, &it.SectionTitle,
			&it.ItemCode, &it.Description, &it.State, &it.Note, &it.ResolvedBy, &resolvedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checklist item: %w", err)
		}
		if it.ResolvedAt, err = parseNullTS(resolvedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanInspection(row rowScanner) (*inspection.Record, error) {
	var rec inspection.Record
	var decidedAt *string
	var created, updated string
	err := row.Scan(
		&rec.ID,
		&rec.Number,
		&rec.UnitID,
		&rec.ActivityID,
		&rec.CheckpointCode,
		&rec.CatalogVersion,
		&rec.Revision,
		&rec.ResubmissionCount,
		&rec.Status,
		&rec.RejectionReason,
		&rec.RequestedBy,
		&rec.ReviewedBy,
		&rec.DecidedBy,
		&decidedAt,
		&rec.Version,
		&created,
		&updated,
	)
	if err != nil {
		if notFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan inspection: %w", err)
	}
	if rec.DecidedAt, err = parseNullTS(decidedAt); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &rec, nil
}
