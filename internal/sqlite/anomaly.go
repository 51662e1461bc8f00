package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpggio/fabtrack/internal/domain/logistics"
	"github.com/rpggio/fabtrack/internal/repository"
)

// AnomalyRepository implements repository.AnomalyRepository for SQLite
type AnomalyRepository struct {
	q Querier
}

// NewAnomalyRepository creates a new AnomalyRepository
func NewAnomalyRepository(q Querier) *AnomalyRepository {
	return &AnomalyRepository{q: q}
}

const anomalyColumns = `id, scan_id, barcode, panel_id, kind, from_status, target_status, status,
	note, resolved_by, resolved_at, version, created_at`

// Create records an anomaly
func (r *AnomalyRepository) Create(ctx context.Context, a *logistics.Anomaly) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO anomalies (`+anomalyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.ScanID,
		a.Barcode,
		nullableString(a.PanelID),
		string(a.Kind),
		string(a.From),
		string(a.Target),
		string(a.Status),
		a.Note,
		a.ResolvedBy,
		nullableTS(a.ResolvedAt),
		a.Version,
		ts(a.CreatedAt),
	)
	if err != nil {
		return writeErr("create anomaly", err)
	}
	return nil
}

// Get retrieves an anomaly by ID
func (r *AnomalyRepository) Get(ctx context.Context, id string) (*logistics.Anomaly, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+anomalyColumns+` FROM anomalies WHERE id = ?`, id)
	a, err := scanAnomaly(row)
	if notFound(err) {
		return nil, repository.ErrNotFound
	}
	return a, err
}

// List returns anomalies oldest first
func (r *AnomalyRepository) List(ctx context.Context, opts repository.ListAnomaliesOptions) ([]logistics.Anomaly, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.PanelID != "" {
		where = append(where, "panel_id = ?")
		args = append(args, opts.PanelID)
	}
	if opts.Barcode != "" {
		where = append(where, "barcode = ?")
		args = append(args, opts.Barcode)
	}
	query := `SELECT ` + anomalyColumns + ` FROM anomalies`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	defer rows.Close()

	var out []logistics.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Update writes resolution state with optimistic concurrency control
func (r *AnomalyRepository) Update(ctx context.Context, a *logistics.Anomaly, expectedVersion int64) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE anomalies
		SET panel_id = ?, status = ?, note = ?, resolved_by = ?, resolved_at = ?, version = ?
		WHERE id = ? AND version = ?
	`,
		nullableString(a.PanelID),
		string(a.Status),
		a.Note,
		a.ResolvedBy,
		nullableTS(a.ResolvedAt),
		expectedVersion+1,
		a.ID,
		expectedVersion,
	)
	if err != nil {
		return writeErr("update anomaly", err)
	}
	if err := checkVersioned(ctx, r.q, "anomalies", a.ID, result); err != nil {
		return err
	}
	a.Version = expectedVersion + 1
	return nil
}

func scanAnomaly(row rowScanner) (*logistics.Anomaly, error) {
	var a logistics.Anomaly
	var panelID, resolvedAt *string
	var created string
	err := row.Scan(&a.ID, &a.ScanID, &a.Barcode, &panelID, &a.Kind, &a.From, &a.Target, &a.Status,
		&a.Note, &a.ResolvedBy, &resolvedAt, &a.Version, &created)
	if err != nil {
		if notFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan anomaly: %w", err)
	}
	if panelID != nil {
		a.PanelID = *panelID
	}
	if a.ResolvedAt, err = parseNullTS(resolvedAt); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	return &a, nil
}
