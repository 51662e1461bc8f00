package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/activity"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/logistics"
	"github.com/rpggio/fabtrack/internal/domain/unit"
	"github.com/rpggio/fabtrack/internal/repository"
)

// UnitView is a unit with its activity instances and panels.
type UnitView struct {
	Unit       unit.Unit           `json:"unit"`
	Activities []activity.Instance `json:"activities"`
	Panels     []logistics.Panel   `json:"panels"`
}

// GetUnit returns the committed state of a unit.
func (e *Engine) GetUnit(ctx context.Context, id string) (*UnitView, error) {
	var out UnitView
	err := e.view(ctx, "get_unit", func(t *txn) error {
		u, err := t.loadUnit(id)
		if err != nil {
			return err
		}
		out.Unit = *u
		if out.Activities, err = t.tx.Activities().ListByUnit(ctx, id); err != nil {
			return err
		}
		out.Panels, err = t.tx.Panels().ListByUnit(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUnitByTag resolves a unit tag.
func (e *Engine) GetUnitByTag(ctx context.Context, tag string) (*unit.Unit, error) {
	var out *unit.Unit
	err := e.view(ctx, "get_unit_by_tag", func(t *txn) error {
		u, err := t.tx.Units().GetByTag(ctx, strings.TrimSpace(tag))
		out = u
		return mapNotFound(err, "unit", tag)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListUnits lists units ordered by tag.
func (e *Engine) ListUnits(ctx context.Context, opts repository.ListUnitsOptions) ([]unit.Unit, error) {
	var out []unit.Unit
	err := e.view(ctx, "list_units", func(t *txn) error {
		units, err := t.tx.Units().List(ctx, opts)
		out = units
		return err
	})
	return out, err
}

// GetActivity returns one activity instance.
func (e *Engine) GetActivity(ctx context.Context, id string) (*activity.Instance, error) {
	var out *activity.Instance
	err := e.view(ctx, "get_activity", func(t *txn) error {
		in, err := t.loadInstance(id)
		out = in
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PanelView is a panel with its direct and reconciled scan history.
type PanelView struct {
	Panel logistics.Panel       `json:"panel"`
	Scans []logistics.ScanEvent `json:"scans"`
}

// GetPanel returns a panel by id, or by barcode when no panel has that id.
func (e *Engine) GetPanel(ctx context.Context, idOrBarcode string) (*PanelView, error) {
	var out PanelView
	err := e.view(ctx, "get_panel", func(t *txn) error {
		p, err := t.tx.Panels().Get(ctx, idOrBarcode)
		if errors.Is(err, repository.ErrNotFound) {
			p, err = t.tx.Panels().GetByBarcode(ctx, idOrBarcode)
		}
		if err != nil {
			return mapNotFound(err, "panel", idOrBarcode)
		}
		out.Panel = *p
		out.Scans, err = t.tx.Scans().ListByPanel(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAnomalies lists anomalies, oldest first.
func (e *Engine) ListAnomalies(ctx context.Context, opts repository.ListAnomaliesOptions) ([]logistics.Anomaly, error) {
	var out []logistics.Anomaly
	err := e.view(ctx, "list_anomalies", func(t *txn) error {
		list, err := t.tx.Anomalies().List(ctx, opts)
		out = list
		return err
	})
	return out, err
}

// GetManifest returns a manifest with its panel ids.
func (e *Engine) GetManifest(ctx context.Context, id string) (*logistics.Manifest, error) {
	var out *logistics.Manifest
	err := e.view(ctx, "get_manifest", func(t *txn) error {
		m, err := t.tx.Manifests().Get(ctx, id)
		out = m
		return mapNotFound(err, "manifest", id)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AuditTrail returns an entity's entries in sequence order.
func (e *Engine) AuditTrail(ctx context.Context, entityType, entityID string) ([]audit.Entry, error) {
	if strings.TrimSpace(entityType) == "" {
		return nil, domain.Validation("entity_type", "required")
	}
	var out []audit.Entry
	err := e.view(ctx, "audit_trail", func(t *txn) error {
		entries, err := t.tx.Audit().List(ctx, entityType, entityID)
		out = entries
		return err
	})
	return out, err
}

// ChainReport is the outcome of re-hashing one entity's audit chain.
type ChainReport struct {
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Entries    int               `json:"entries"`
	Valid      bool              `json:"valid"`
	Broken     *audit.ChainError `json:"broken,omitempty"`
}

// VerifyAuditChain recomputes every hash of the entity's chain and reports the first broken link.
func (e *Engine) VerifyAuditChain(ctx context.Context, entityType, entityID string) (*ChainReport, error) {
	entries, err := e.AuditTrail(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	report := &ChainReport{EntityType: entityType, EntityID: entityID, Entries: len(entries), Valid: true}
	if err := audit.Verify(entries); err != nil {
		var ce *audit.ChainError
		if !errors.As(err, &ce) {
			return nil, err
		}
		report.Valid = false
		report.Broken = ce
		e.logger.Warn("audit chain broken", "entity_type", entityType, "entity_id", entityID, "seq", ce.Seq, "reason", ce.Reason)
	}
	return report, nil
}
