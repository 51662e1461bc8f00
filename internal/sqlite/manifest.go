package sqlite

import (
	"context"
	"fmt"

	"github.com/rpggio/fabtrack/internal/domain/logistics"
	"github.com/rpggio/fabtrack/internal/repository"
)

// ManifestRepository implements repository.ManifestRepository for SQLite.
// Membership lives on panels.manifest_id.
type ManifestRepository struct {
	q Querier
}

// NewManifestRepository creates a new ManifestRepository
func NewManifestRepository(q Querier) *ManifestRepository {
	return &ManifestRepository{q: q}
}

// Create inserts the manifest header
func (r *ManifestRepository) Create(ctx context.Context, m *logistics.Manifest) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO delivery_manifests (id, carrier, vehicle, delivery_date, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.Carrier, m.Vehicle, ts(m.DeliveryDate), m.CreatedBy, ts(m.CreatedAt))
	if err != nil {
		return writeErr("create manifest", err)
	}
	return nil
}

// Get retrieves a manifest and the IDs of its panels
func (r *ManifestRepository) Get(ctx context.Context, id string) (*logistics.Manifest, error) {
	var m logistics.Manifest
	var date, created string
	err := r.q.QueryRowContext(ctx, `
		SELECT id, carrier, vehicle, delivery_date, created_by, created_at
		FROM delivery_manifests WHERE id = ?
	`, id).Scan(&m.ID, &m.Carrier, &m.Vehicle, &date, &m.CreatedBy, &created)
	if notFound(err) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest: %w", err)
	}
	if m.DeliveryDate, err = parseTS(date); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx, `SELECT id FROM panels WHERE manifest_id = ? ORDER BY barcode`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list manifest panels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var panelID string
		if err := rows.Scan(&panelID); err != nil {
			return nil, fmt.Errorf("failed to scan manifest panel: %w", err)
		}
		m.PanelIDs = append(m.PanelIDs, panelID)
	}
	return &m, rows.Err()
}
