package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/fabtrack/internal/repository"
	_ "modernc.org/sqlite"
)

// Querier is the subset of *sql.DB and *sql.Tx the repositories use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection. SQLite serializes writers, so the
// pool holds one connection and transactions queue for it.
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &DB{db}, nil
}

// InTx implements repository.Store.
func (db *DB) InTx(ctx context.Context, fn func(tx repository.Tx) error) (err error) {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapTxErr("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(newTx(sqlTx)); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return mapTxErr("commit transaction", err)
	}
	return nil
}

func mapTxErr(op string, err error) error {
	if isBusy(err) {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

type tx struct {
	q Querier
}

func newTx(q Querier) *tx {
	return &tx{q: q}
}

func (t *tx) Units() repository.UnitRepository {
	return NewUnitRepository(t.q)
}

func (t *tx) Definitions() repository.DefinitionRepository {
	return NewDefinitionRepository(t.q)
}

func (t *tx) Activities() repository.ActivityRepository {
	return NewActivityRepository(t.q)
}

func (t *tx) Dependencies() repository.DependencyRepository {
	return NewDependencyRepository(t.q)
}

func (t *tx) Inspections() repository.InspectionRepository {
	return NewInspectionRepository(t.q)
}

func (t *tx) Panels() repository.PanelRepository {
	return NewPanelRepository(t.q)
}

func (t *tx) Scans() repository.ScanRepository {
	return NewScanRepository(t.q)
}

func (t *tx) Anomalies() repository.AnomalyRepository {
	return NewAnomalyRepository(t.q)
}

func (t *tx) Manifests() repository.ManifestRepository {
	return NewManifestRepository(t.q)
}

func (t *tx) Audit() repository.AuditRepository {
	return NewAuditRepository(t.q)
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// RunMigrations creates the schema. Statements are idempotent.
func (db *DB) RunMigrations() error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS activity_definitions (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL,
    catalog_version TEXT NOT NULL,
    name TEXT NOT NULL,
    stage TEXT NOT NULL DEFAULT '',
    sequence INTEGER NOT NULL,
    standard_duration TEXT NOT NULL,
    is_checkpoint INTEGER NOT NULL DEFAULT 0,
    checkpoint_code TEXT NOT NULL DEFAULT '',
    checklist_sections TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    UNIQUE (code, catalog_version)
);

CREATE TABLE IF NOT EXISTS checklist_sections (
    catalog_version TEXT NOT NULL,
    code TEXT NOT NULL,
    title TEXT NOT NULL,
    PRIMARY KEY (catalog_version, code)
);

CREATE TABLE IF NOT EXISTS predefined_items (
    catalog_version TEXT NOT NULL,
    section_code TEXT NOT NULL,
    position INTEGER NOT NULL,
    code TEXT NOT NULL,
    description TEXT NOT NULL,
    PRIMARY KEY (catalog_version, section_code, position),
    FOREIGN KEY (catalog_version, section_code) REFERENCES checklist_sections(catalog_version, code)
);

CREATE TABLE IF NOT EXISTS units (
    id TEXT PRIMARY KEY,
    tag TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    attributes TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL CHECK(status IN ('NotStarted', 'InProgress', 'OnHold', 'Completed')),
    progress TEXT NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_units_status ON units(status);

CREATE TABLE IF NOT EXISTS activity_instances (
    id TEXT PRIMARY KEY,
    unit_id TEXT NOT NULL,
    definition_id TEXT NOT NULL,
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    standard_duration TEXT NOT NULL,
    is_checkpoint INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('Pending', 'InProgress', 'OnHold', 'Blocked', 'Completed')),
    block_reason TEXT NOT NULL DEFAULT '',
    hold_reason TEXT NOT NULL DEFAULT '',
    progress TEXT NOT NULL,
    planned_start TEXT,
    planned_end TEXT,
    actual_start TEXT,
    actual_end TEXT,
    assigned_team TEXT NOT NULL DEFAULT '',
    assigned_member TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (unit_id, sequence),
    FOREIGN KEY (unit_id) REFERENCES units(id) ON DELETE CASCADE,
    FOREIGN KEY (definition_id) REFERENCES activity_definitions(id)
);

CREATE TABLE IF NOT EXISTS activity_dependencies (
    id TEXT PRIMARY KEY,
    unit_id TEXT NOT NULL,
    predecessor_id TEXT NOT NULL,
    dependent_id TEXT NOT NULL,
    type TEXT NOT NULL CHECK(type IN ('FinishToStart', 'StartToStart')),
    lag_days INTEGER NOT NULL CHECK(lag_days >= 0),
    created_at TEXT NOT NULL,
    UNIQUE (predecessor_id, dependent_id),
    CHECK (predecessor_id <> dependent_id),
    FOREIGN KEY (unit_id) REFERENCES units(id) ON DELETE CASCADE,
    FOREIGN KEY (predecessor_id) REFERENCES activity_instances(id) ON DELETE CASCADE,
    FOREIGN KEY (dependent_id) REFERENCES activity_instances(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_dependencies_unit ON activity_dependencies(unit_id);

CREATE TABLE IF NOT EXISTS inspection_records (
    id TEXT PRIMARY KEY,
    number TEXT NOT NULL UNIQUE,
    unit_id TEXT NOT NULL,
    activity_id TEXT NOT NULL,
    checkpoint_code TEXT NOT NULL,
    catalog_version TEXT NOT NULL,
    revision INTEGER NOT NULL,
    resubmission_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('Requested', 'UnderReview', 'Approved', 'Rejected')),
    rejection_reason TEXT NOT NULL DEFAULT '',
    requested_by TEXT NOT NULL DEFAULT '',
    reviewed_by TEXT NOT NULL DEFAULT '',
    decided_by TEXT NOT NULL DEFAULT '',
    decided_at TEXT,
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (activity_id, revision),
    FOREIGN KEY (unit_id) REFERENCES units(id) ON DELETE CASCADE,
    FOREIGN KEY (activity_id) REFERENCES activity_instances(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS checklist_items (
    id TEXT PRIMARY KEY,
    record_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    section_code TEXT NOT NULL DEFAULT '',
    section_title TEXT NOT NULL DEFAULT '',
    item_code TEXT NOT NULL,
    description TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT '' CHECK(state IN ('', 'pass', 'fail', 'na')),
    note TEXT NOT NULL DEFAULT '',
    resolved_by TEXT NOT NULL DEFAULT '',
    resolved_at TEXT,
    UNIQUE (record_id, position),
    FOREIGN KEY (record_id) REFERENCES inspection_records(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS delivery_manifests (
    id TEXT PRIMARY KEY,
    carrier TEXT NOT NULL,
    vehicle TEXT NOT NULL DEFAULT '',
    delivery_date TEXT NOT NULL,
    created_by TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS panels (
    id TEXT PRIMARY KEY,
    barcode TEXT NOT NULL UNIQUE,
    unit_id TEXT NOT NULL,
    panel_type TEXT NOT NULL DEFAULT '',
    location_status TEXT NOT NULL CHECK(location_status IN ('AtFactory', 'Dispatched', 'InTransit', 'Delivered', 'Installed')),
    last_seen_at TEXT NOT NULL DEFAULT '',
    first_decision TEXT NOT NULL,
    first_approver TEXT NOT NULL DEFAULT '',
    first_decided_at TEXT,
    first_notes TEXT NOT NULL DEFAULT '',
    second_decision TEXT NOT NULL,
    second_approver TEXT NOT NULL DEFAULT '',
    second_decided_at TEXT,
    second_notes TEXT NOT NULL DEFAULT '',
    manifest_id TEXT,
    resubmission_count INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (unit_id) REFERENCES units(id) ON DELETE CASCADE,
    FOREIGN KEY (manifest_id) REFERENCES delivery_manifests(id)
);
CREATE INDEX IF NOT EXISTS idx_panels_unit ON panels(unit_id);

CREATE TABLE IF NOT EXISTS scan_events (
    id TEXT PRIMARY KEY,
    barcode TEXT NOT NULL,
    panel_id TEXT,
    scan_type TEXT NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    latitude REAL,
    longitude REAL,
    actor_id TEXT NOT NULL,
    client_time TEXT NOT NULL,
    server_time TEXT NOT NULL,
    dedup_key TEXT NOT NULL,
    unresolved INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (panel_id) REFERENCES panels(id)
);
CREATE INDEX IF NOT EXISTS idx_scans_dedup ON scan_events(dedup_key, server_time);
CREATE INDEX IF NOT EXISTS idx_scans_barcode ON scan_events(barcode, server_time);

CREATE TRIGGER IF NOT EXISTS scan_events_no_update BEFORE UPDATE ON scan_events BEGIN
    SELECT RAISE(ABORT, 'scan events are immutable');
END;
CREATE TRIGGER IF NOT EXISTS scan_events_no_delete BEFORE DELETE ON scan_events BEGIN
    SELECT RAISE(ABORT, 'scan events are immutable');
END;

CREATE TABLE IF NOT EXISTS scan_links (
    scan_id TEXT PRIMARY KEY,
    panel_id TEXT NOT NULL,
    linked_at TEXT NOT NULL,
    FOREIGN KEY (scan_id) REFERENCES scan_events(id),
    FOREIGN KEY (panel_id) REFERENCES panels(id)
);

CREATE TABLE IF NOT EXISTS anomalies (
    id TEXT PRIMARY KEY,
    scan_id TEXT NOT NULL,
    barcode TEXT NOT NULL,
    panel_id TEXT,
    kind TEXT NOT NULL,
    from_status TEXT NOT NULL DEFAULT '',
    target_status TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL CHECK(status IN ('Open', 'Confirmed', 'Dismissed', 'Reconciled')),
    note TEXT NOT NULL DEFAULT '',
    resolved_by TEXT NOT NULL DEFAULT '',
    resolved_at TEXT,
    version INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY (scan_id) REFERENCES scan_events(id),
    FOREIGN KEY (panel_id) REFERENCES panels(id)
);
CREATE INDEX IF NOT EXISTS idx_anomalies_status ON anomalies(status);

CREATE TABLE IF NOT EXISTS audit_log (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    action TEXT NOT NULL,
    prior_state TEXT NOT NULL DEFAULT '',
    new_state TEXT NOT NULL DEFAULT '',
    actor_id TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '{}',
    timestamp TEXT NOT NULL,
    prev_hash TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL,
    UNIQUE (entity_type, entity_id, seq)
);

CREATE TRIGGER IF NOT EXISTS audit_log_no_update BEFORE UPDATE ON audit_log BEGIN
    SELECT RAISE(ABORT, 'audit entries are immutable');
END;
CREATE TRIGGER IF NOT EXISTS audit_log_no_delete BEFORE DELETE ON audit_log BEGIN
    SELECT RAISE(ABORT, 'audit entries are immutable');
END;
`

type rowScanner interface {
	Scan(dest ...any) error
}

// checkVersioned turns a zero-row conditional update into ErrNotFound or ErrConflict.
func checkVersioned(ctx context.Context, q Querier, table, id string, result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	checkQuery := `SELECT EXISTS(SELECT 1 FROM ` + table + ` WHERE id = ?)`
	if err := q.QueryRowContext(ctx, checkQuery, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	// Row exists but version doesn't match
	return repository.ErrConflict
}

// writeErr maps constraint and lock failures onto repository sentinels.
func writeErr(op string, err error) error {
	switch {
	case isUniqueViolation(err):
		return repository.ErrDuplicate
	case isForeignKeyViolation(err):
		return repository.ErrForeignKeyViolation
	case isBusy(err):
		return repository.ErrConflict
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
