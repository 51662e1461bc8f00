package sqlite

import (
	"context"
	"fmt"

	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/rpggio/fabtrack/internal/repository"
)

// DependencyRepository implements repository.DependencyRepository for SQLite
type DependencyRepository struct {
	q Querier
}

// NewDependencyRepository creates a new DependencyRepository
func NewDependencyRepository(q Querier) *DependencyRepository {
	return &DependencyRepository{q: q}
}

const dependencyColumns = `id, unit_id, predecessor_id, dependent_id, type, lag_days, created_at`

// Create inserts an edge. Acyclicity is validated by the caller.
func (r *DependencyRepository) Create(ctx context.Context, e dependency.Edge) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO activity_dependencies (`+dependencyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UnitID, e.PredecessorID, e.DependentID, string(e.Type), e.LagDays, ts(e.CreatedAt))
	if err != nil {
		return writeErr("create dependency", err)
	}
	return nil
}

// Get retrieves an edge by ID
func (r *DependencyRepository) Get(ctx context.Context, id string) (*dependency.Edge, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+dependencyColumns+` FROM activity_dependencies WHERE id = ?`, id)
	e, err := scanEdge(row)
	if notFound(err) {
		return nil, repository.ErrNotFound
	}
	return e, err
}

// Delete removes an edge
func (r *DependencyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM activity_dependencies WHERE id = ?`, id)
	if err != nil {
		return writeErr("delete dependency", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByUnit returns a unit's edges in creation order
func (r *DependencyRepository) ListByUnit(ctx context.Context, unitID string) ([]dependency.Edge, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+dependencyColumns+` FROM activity_dependencies WHERE unit_id = ? ORDER BY created_at, id`, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer rows.Close()

	var out []dependency.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEdge(row rowScanner) (*dependency.Edge, error) {
	var e dependency.Edge
	var created string
	if err := row.Scan(&e.ID, &e.UnitID, &e.PredecessorID, &e.DependentID, &e.Type, &e.LagDays, &created); err != nil {
		if notFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dependency: %w", err)
	}
	var err error
	if e.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	return &e, nil
}
