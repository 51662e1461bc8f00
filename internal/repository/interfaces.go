package repository

import (
	"context"
	"time"

	"github.com/rpggio/fabtrack/internal/domain/activity"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/catalog"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/rpggio/fabtrack/internal/domain/inspection"
	"github.com/rpggio/fabtrack/internal/domain/logistics"
	"github.com/rpggio/fabtrack/internal/domain/unit"
)

// Store runs units of work atomically. fn's writes commit together or not at all;
// an error returned by fn rolls the transaction back and is returned unchanged.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Units() UnitRepository
	Definitions() DefinitionRepository
	Activities() ActivityRepository
	Dependencies() DependencyRepository
	Inspections() InspectionRepository
	Panels() PanelRepository
	Scans() ScanRepository
	Anomalies() AnomalyRepository
	Manifests() ManifestRepository
	Audit() AuditRepository
}

// UnitRepository manages production unit persistence
type UnitRepository interface {
	Create(ctx context.Context, u *unit.Unit) error
	Get(ctx context.Context, id string) (*unit.Unit, error)
	GetByTag(ctx context.Context, tag string) (*unit.Unit, error)
	List(ctx context.Context, opts ListUnitsOptions) ([]unit.Unit, error)
	// Update writes u when the stored version equals expectedVersion and bumps u.Version.
	Update(ctx context.Context, u *unit.Unit, expectedVersion int64) error
}

// ListUnitsOptions filters unit listings
type ListUnitsOptions struct {
	Status unit.Status
	Type   string
	Limit  int
	Offset int
}

// DefinitionRepository manages catalog definitions. Rows are never updated.
type DefinitionRepository interface {
	Create(ctx context.Context, d catalog.Definition) error
	Get(ctx context.Context, id string) (*catalog.Definition, error)
	List(ctx context.Context) ([]catalog.Definition, error)
	// CreateSection stores a checklist section and its items for a catalog version.
	CreateSection(ctx context.Context, version string, s catalog.Section) error
	ListSections(ctx context.Context, version string) ([]catalog.Section, error)
}

// ActivityRepository manages activity instance persistence
type ActivityRepository interface {
	Create(ctx context.Context, in *activity.Instance) error
	Get(ctx context.Context, id string) (*activity.Instance, error)
	ListByUnit(ctx context.Context, unitID string) ([]activity.Instance, error)
	Update(ctx context.Context, in *activity.Instance, expectedVersion int64) error
}

// DependencyRepository manages dependency edges
type DependencyRepository interface {
	Create(ctx context.Context, e dependency.Edge) error
	Get(ctx context.Context, id string) (*dependency.Edge, error)
	Delete(ctx context.Context, id string) error
	ListByUnit(ctx context.Context, unitID string) ([]dependency.Edge, error)
}

// InspectionRepository manages inspection records and their checklist items
type InspectionRepository interface {
	Create(ctx context.Context, rec *inspection.Record) error
	Get(ctx context.Context, id string) (*inspection.Record, error)
	ListByActivity(ctx context.Context, activityID string) ([]inspection.Record, error)
	ListByUnit(ctx context.Context, unitID string) ([]inspection.Record, error)
	Update(ctx context.Context, rec *inspection.Record, expectedVersion int64) error
}

// PanelRepository manages logistics assets
type PanelRepository interface {
	Create(ctx context.Context, p *logistics.Panel) error
	Get(ctx context.Context, id string) (*logistics.Panel, error)
	GetByBarcode(ctx context.Context, barcode string) (*logistics.Panel, error)
	ListByUnit(ctx context.Context, unitID string) ([]logistics.Panel, error)
	Update(ctx context.Context, p *logistics.Panel, expectedVersion int64) error
}

// ScanRepository stores immutable scan events. Reconciliation is recorded as links.
type ScanRepository interface {
	Create(ctx context.Context, s *logistics.ScanEvent) error
	Get(ctx context.Context, id string) (*logistics.ScanEvent, error)
	// FindRecent returns the newest scan with the key recorded at or after since.
	FindRecent(ctx context.Context, dedupKey string, since time.Time) (*logistics.ScanEvent, error)
	// LastServerTime returns the newest server timestamp for the barcode, zero when none.
	LastServerTime(ctx context.Context, barcode string) (time.Time, error)
	ListUnresolved(ctx context.Context, barcode string) ([]logistics.ScanEvent, error)
	// ListByPanel returns direct and reconciled scans in server time order.
	ListByPanel(ctx context.Context, panelID string) ([]logistics.ScanEvent, error)
	Link(ctx context.Context, scanID, panelID string, at time.Time) error
}

// AnomalyRepository manages chain-of-custody anomalies
type AnomalyRepository interface {
	Create(ctx context.Context, a *logistics.Anomaly) error
	Get(ctx context.Context, id string) (*logistics.Anomaly, error)
	List(ctx context.Context, opts ListAnomaliesOptions) ([]logistics.Anomaly, error)
	Update(ctx context.Context, a *logistics.Anomaly, expectedVersion int64) error
}

// ListAnomaliesOptions filters anomaly listings
type ListAnomaliesOptions struct {
	Status  logistics.AnomalyStatus
	PanelID string
	Barcode string
	Limit   int
}

// ManifestRepository manages delivery manifests
type ManifestRepository interface {
	Create(ctx context.Context, m *logistics.Manifest) error
	Get(ctx context.Context, id string) (*logistics.Manifest, error)
}

// AuditRepository appends to and reads the audit log. Entries are never updated.
type AuditRepository interface {
	// Append returns ErrConflict when the entity already has an entry at e.Seq.
	Append(ctx context.Context, e audit.Entry) error
	// Last returns the entity's newest entry, or nil when it has none.
	Last(ctx context.Context, entityType, entityID string) (*audit.Entry, error)
	List(ctx context.Context, entityType, entityID string) ([]audit.Entry, error)
}
