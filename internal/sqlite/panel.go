package sqlite

import (
	"context"
	"fmt"

	"github.com/rpggio/fabtrack/internal/domain/logistics"
	"github.com/rpggio/fabtrack/internal/repository"
)

// PanelRepository implements repository.PanelRepository for SQLite
type PanelRepository struct {
	q Querier
}

// NewPanelRepository creates a new PanelRepository
func NewPanelRepository(q Querier) *PanelRepository {
	return &PanelRepository{q: q}
}

const panelColumns = `id, barcode, unit_id, panel_type, location_status, last_seen_at,
	first_decision, first_approver, first_decided_at, first_notes,
	second_decision, second_approver, second_decided_at, second_notes,
	manifest_id, resubmission_count, version, created_at, updated_at`

// Create inserts a panel. A taken barcode returns ErrDuplicate.
func (r *PanelRepository) Create(ctx context.Context, p *logistics.Panel) error {
	query := `INSERT INTO panels (` + panelColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, query,
		p.ID,
		p.Barcode,
		p.UnitID,
		p.PanelType,
		string(p.Location),
		p.LastSeenAt,
		string(p.First.Decision),
		p.First.ApproverID,
		nullableTS(p.First.DecidedAt),
		p.First.Notes,
		string(p.Second.Decision),
		p.Second.ApproverID,
		nullableTS(p.Second.DecidedAt),
		p.Second.Notes,
		nullableString(p.ManifestID),
		p.ResubmissionCount,
		p.Version,
		ts(p.CreatedAt),
		ts(p.UpdatedAt),
	)
	if err != nil {
		return writeErr("create panel", err)
	}
	return nil
}

// Get retrieves a panel by ID
func (r *PanelRepository) Get(ctx context.Context, id string) (*logistics.Panel, error) {
	return r.getBy(ctx, "id", id)
}

// GetByBarcode retrieves a panel by barcode
func (r *PanelRepository) GetByBarcode(ctx context.Context, barcode string) (*logistics.Panel, error) {
	return r.getBy(ctx, "barcode", barcode)
}

func (r *PanelRepository) getBy(ctx context.Context, column, value string) (*logistics.Panel, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+panelColumns+` FROM panels WHERE `+column+` = ?`, value)
	p, err := scanPanel(row)
	if notFound(err) {
		return nil, repository.ErrNotFound
	}
	return p, err
}

// ListByUnit returns a unit's panels ordered by barcode
func (r *PanelRepository) ListByUnit(ctx context.Context, unitID string) ([]logistics.Panel, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+panelColumns+` FROM panels WHERE unit_id = ? ORDER BY barcode`, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list panels: %w", err)
	}
	defer rows.Close()

	var out []logistics.Panel
	for rows.Next() {
		p, err := scanPanel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Update writes location, approvals and manifest with optimistic concurrency control
func (r *PanelRepository) Update(ctx context.Context, p *logistics.Panel, expectedVersion int64) error {
	query := `
		UPDATE panels
		SET location_status = ?, last_seen_at = ?,
		    first_decision = ?, first_approver = ?, first_decided_at = ?, first_notes = ?,
		    second_decision = ?, second_approver = ?, second_decided_at = ?, second_notes = ?,
		    manifest_id = ?, resubmission_count = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.q.ExecContext(ctx, query,
		string(p.Location),
		p.LastSeenAt,
		string(p.First.Decision),
		p.First.ApproverID,
		nullableTS(p.First.DecidedAt),
		p.First.Notes,
		string(p.Second.Decision),
		p.Second.ApproverID,
		nullableTS(p.Second.DecidedAt),
		p.Second.Notes,
		nullableString(p.ManifestID),
		p.ResubmissionCount,
		expectedVersion+1,
		ts(p.UpdatedAt),
		p.ID,
		expectedVersion,
	)
	if err != nil {
		return writeErr("update panel", err)
	}
	if err := checkVersioned(ctx, r.q, "panels", p.ID, result); err != nil {
		return err
	}
	p.Version = expectedVersion + 1
	return nil
}

func scanPanel(row rowScanner) (*logistics.Panel, error) {
	var p logistics.Panel
	var firstAt, secondAt, manifestID *string
	var created, updated string
	err := row.Scan(
		&p.ID,
		&p.Barcode,
		&p.UnitID,
		&p.PanelType,
		&p.Location,
		&p.LastSeenAt,
		&p.First.Decision,
		&p.First.ApproverID,
		&firstAt,
		&p.First.Notes,
		&p.Second.Decision,
		&p.Second.ApproverID,
		&secondAt,
		&p.Second.Notes,
		&manifestID,
		&p.ResubmissionCount,
		&p.Version,
		&created,
		&updated,
	)
	if err != nil {
		if notFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan panel: %w", err)
	}
	if manifestID != nil {
		p.ManifestID = *manifestID
	}
	if p.First.DecidedAt, err = parseNullTS(firstAt); err != nil {
		return nil, err
	}
	if p.Second.DecidedAt, err = parseNullTS(secondAt); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTS(updated); err != nil {
		return nil, err
	}
	return &p, nil
}
