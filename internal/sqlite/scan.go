package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rpggio/fabtrack/internal/domain/logistics"
	"github.com/rpggio/fabtrack/internal/repository"
)

// ScanRepository implements repository.ScanRepository for SQLite. Scan rows are
// protected by triggers against update and delete.
type ScanRepository struct {
	q Querier
}

// NewScanRepository creates a new ScanRepository
func NewScanRepository(q Querier) *ScanRepository {
	return &ScanRepository{q: q}
}

const scanColumns = `s.id, s.barcode, s.panel_id, s.scan_type, s.location, s.latitude, s.longitude,
	s.actor_id, s.client_time, s.server_time, s.dedup_key, s.unresolved`

// Create appends a scan event
func (r *ScanRepository) Create(ctx context.Context, s *logistics.ScanEvent) error {
	var lat, lng any
	if s.Geo != nil {
		lat, lng = s.Geo.Latitude, s.Geo.Longitude
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO scan_events (
			id, barcode, panel_id, scan_type, location, latitude, longitude,
			actor_id, client_time, server_time, dedup_key, unresolved
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.Barcode,
		nullableString(s.PanelID),
		string(s.ScanType),
		s.Location,
		lat,
		lng,
		s.ActorID,
		ts(s.ClientTime),
		ts(s.ServerTime),
		s.DedupKey,
		boolInt(s.Unresolved),
	)
	if err != nil {
		return writeErr("create scan", err)
	}
	return nil
}

// Get retrieves a scan by ID
func (r *ScanRepository) Get(ctx context.Context, id string) (*logistics.ScanEvent, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scan_events s WHERE s.id = ?`, id)
	s, err := scanScan(row)
	if notFound(err) {
		return nil, repository.ErrNotFound
	}
	return s, err
}

// FindRecent returns the newest scan carrying dedupKey recorded at or after since
func (r *ScanRepository) FindRecent(ctx context.Context, dedupKey string, since time.Time) (*logistics.ScanEvent, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+scanColumns+` FROM scan_events s
		WHERE s.dedup_key = ? AND s.server_time >= ?
		ORDER BY s.server_time DESC LIMIT 1
	`, dedupKey, ts(since))
	s, err := scanScan(row)
	if notFound(err) {
		return nil, repository.ErrNotFound
	}
	return s, err
}

// LastServerTime returns the newest server timestamp recorded for the barcode
func (r *ScanRepository) LastServerTime(ctx context.Context, barcode string) (time.Time, error) {
	var last *string
	err := r.q.QueryRowContext(ctx, `SELECT MAX(server_time) FROM scan_events WHERE barcode = ?`, barcode).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last scan time: %w", err)
	}
	t, err := parseNullTS(last)
	if err != nil || t == nil {
		return time.Time{}, err
	}
	return *t, nil
}

// ListUnresolved returns scans of barcode that are flagged and not yet linked
func (r *ScanRepository) ListUnresolved(ctx context.Context, barcode string) ([]logistics.ScanEvent, error) {
	return r.list(ctx, `
		SELECT `+scanColumns+` FROM scan_events s
		LEFT JOIN scan_links l ON l.scan_id = s.id
		WHERE s.barcode = ? AND s.unresolved = 1 AND l.scan_id IS NULL
		ORDER BY s.server_time
	`, barcode)
}

// ListByPanel returns direct and reconciled scans for a panel
func (r *ScanRepository) ListByPanel(ctx context.Context, panelID string) ([]logistics.ScanEvent, error) {
	return r.list(ctx, `
		SELECT `+scanColumns+` FROM scan_events s
		LEFT JOIN scan_links l ON l.scan_id = s.id
		WHERE s.panel_id = ? OR l.panel_id = ?
		ORDER BY s.server_time
	`, panelID, panelID)
}

// Link records that an unresolved scan belongs to a panel
func (r *ScanRepository) Link(ctx context.Context, scanID, panelID string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO scan_links (scan_id, panel_id, linked_at) VALUES (?, ?, ?)`, scanID, panelID, ts(at))
	if err != nil {
		return writeErr("link scan", err)
	}
	return nil
}

func (r *ScanRepository) list(ctx context.Context, query string, args ...any) ([]logistics.ScanEvent, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var out []logistics.ScanEvent
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanScan(row rowScanner) (*logistics.ScanEvent, error) {
	var s logistics.ScanEvent
	var panelID *string
	var lat, lng *float64
	var clientTime, serverTime string
	var unresolved int
	err := row.Scan(&s.ID, &s.Barcode, &panelID, &s.ScanType, &s.Location, &lat, &lng,
		&s.ActorID, &clientTime, &serverTime, &s.DedupKey, &unresolved)
	if err != nil {
		if notFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan scan event: %w", err)
	}
	if panelID != nil {
		s.PanelID = *panelID
	}
	if lat != nil && lng != nil {
		s.Geo = &logistics.GeoPoint{Latitude: *lat, Longitude: *lng}
	}
	s.Unresolved = unresolved != 0
	if s.ClientTime, err = parseTS(clientTime); err != nil {
		return nil, err
	}
	if s.ServerTime, err = parseTS(serverTime); err != nil {
		return nil, err
	}
	return &s, nil
}
