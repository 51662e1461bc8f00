package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rpggio/fabtrack/internal/domain/unit"
	"github.com/rpggio/fabtrack/internal/repository"
)

// UnitRepository implements repository.UnitRepository for SQLite
type UnitRepository struct {
	q Querier
}

// NewUnitRepository creates a new UnitRepository
func NewUnitRepository(q Querier) *UnitRepository {
	return &UnitRepository{q: q}
}

const unitColumns = `id, tag, type, attributes, status, progress, location, version, created_at, updated_at`

// Create inserts a unit. A taken tag returns ErrDuplicate.
func (r *UnitRepository) Create(ctx context.Context, u *unit.Unit) error {
	attrs, err := toJSON(u.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	query := `INSERT INTO units (` + unitColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.q.ExecContext(ctx, query,
		u.ID,
		u.Tag,
		u.Type,
		attrs,
		string(u.Status),
		u.Progress.String(),
		u.Location,
		u.Version,
		ts(u.CreatedAt),
		ts(u.UpdatedAt),
	)
	if err != nil {
		return writeErr("create unit", err)
	}
	return nil
}

// Get retrieves a unit by ID
func (r *UnitRepository) Get(ctx context.Context, id string) (*unit.Unit, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, id)
	return r.scanOne(row)
}

// GetByTag retrieves a unit by its unique tag
func (r *UnitRepository) GetByTag(ctx context.Context, tag string) (*unit.Unit, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE tag = ?`, tag)
	return r.scanOne(row)
}

// List returns units ordered by tag
func (r *UnitRepository) List(ctx context.Context, opts repository.ListUnitsOptions) ([]unit.Unit, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.Type != "" {
		where = append(where, "type = ?")
		args = append(args, opts.Type)
	}
	query := `SELECT ` + unitColumns + ` FROM units`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY tag"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var out []unit.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Update writes derived fields and location with optimistic concurrency control
func (r *UnitRepository) Update(ctx context.Context, u *unit.Unit, expectedVersion int64) error {
	attrs, err := toJSON(u.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	query := `
		UPDATE units
		SET type = ?, attributes = ?, status = ?, progress = ?, location = ?,
		    version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.q.ExecContext(ctx, query,
		u.Type,
		attrs,
		string(u.Status),
		u.Progress.String(),
		u.Location,
		expectedVersion+1,
		ts(u.UpdatedAt),
		u.ID,
		expectedVersion,
	)
	if err != nil {
		return writeErr("update unit", err)
	}
	if err := checkVersioned(ctx, r.q, "units", u.ID, result); err != nil {
		return err
	}
	u.Version = expectedVersion + 1
	return nil
}

func (r *UnitRepository) scanOne(row rowScanner) (*unit.Unit, error) {
	u, err := scanUnit(row)
	if notFound(err) {
		return nil, repository.ErrNotFound
	}
	return u, err
}

func scanUnit(row rowScanner) (*unit.Unit, error) {
	var u unit.Unit
	var attrs, progress, created, upd string
	err := row.Scan(&u.ID, &u.Tag, &u.Type, &attrs, &u.Status, &progress, &u.Location, &u.Version, &created, &upd)
	if err != nil {
		if notFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan unit: %w", err)
	}
	if err := json.Unmarshal([]byte(attrs), &u.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	if u.Progress, err = parseDecimal(progress); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTS(upd); err != nil {
		return nil, err
	}
	return &u, nil
}
