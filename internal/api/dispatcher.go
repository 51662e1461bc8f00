// Package api maps named JSON methods onto engine operations and read projections.
package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpggio/fabtrack/internal/domain/access"
	"github.com/rpggio/fabtrack/internal/domain/activity"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/rpggio/fabtrack/internal/domain/inspection"
	"github.com/rpggio/fabtrack/internal/domain/logistics"
	"github.com/rpggio/fabtrack/internal/domain/unit"
	"github.com/rpggio/fabtrack/internal/repository"
	"github.com/rpggio/fabtrack/internal/workflow"
	"github.com/shopspring/decimal"
)

// Engine is the set of workflow operations exposed over the wire.
type Engine interface {
	CreateUnit(ctx context.Context, actor access.Actor, req workflow.CreateUnitRequest) (*unit.Unit, error)
	AddActivity(ctx context.Context, actor access.Actor, req workflow.AddActivityRequest) (*activity.Instance, error)
	MoveUnit(ctx context.Context, actor access.Actor, unitID, location string) (*unit.Unit, error)
	RecomputeUnit(ctx context.Context, actor access.Actor, unitID string) (*unit.Unit, error)

	StartActivity(ctx context.Context, actor access.Actor, id string) (*activity.Instance, error)
	UpdateProgress(ctx context.Context, actor access.Actor, id string, pct decimal.Decimal) (*activity.Instance, error)
	CorrectProgress(ctx context.Context, actor access.Actor, id string, pct decimal.Decimal, reason string) (*activity.Instance, error)
	HoldActivity(ctx context.Context, actor access.Actor, id, reason string) (*activity.Instance, error)
	ResumeActivity(ctx context.Context, actor access.Actor, id string) (*activity.Instance, error)
	CompleteActivity(ctx context.Context, actor access.Actor, id string) (*activity.Instance, error)
	ReopenActivity(ctx context.Context, actor access.Actor, id, reason string) (*activity.Instance, error)
	AssignActivity(ctx context.Context, actor access.Actor, id, team, member string) (*activity.Instance, error)

	AddDependency(ctx context.Context, actor access.Actor, req workflow.AddDependencyRequest) (*dependency.Edge, error)
	RemoveDependency(ctx context.Context, actor access.Actor, edgeID string) error

	OpenInspection(ctx context.Context, actor access.Actor, activityID string) (*inspection.Record, error)
	StartReview(ctx context.Context, actor access.Actor, recordID string) (*inspection.Record, error)
	ResolveChecklistItem(ctx context.Context, actor access.Actor, req workflow.ResolveItemRequest) (*inspection.Record, error)
	ApproveInspection(ctx context.Context, actor access.Actor, recordID string) (*inspection.Record, error)
	RejectInspection(ctx context.Context, actor access.Actor, recordID, reason string) (*inspection.Record, error)

	RegisterPanel(ctx context.Context, actor access.Actor, req workflow.RegisterPanelRequest) (*logistics.Panel, error)
	RecordScan(ctx context.Context, actor access.Actor, req workflow.RecordScanRequest) (*workflow.ScanResult, error)
	DecideApproval(ctx context.Context, actor access.Actor, req workflow.DecideApprovalRequest) (*logistics.Panel, error)
	ResubmitPanel(ctx context.Context, actor access.Actor, panelID string) (*logistics.Panel, error)
	AdvanceLocation(ctx context.Context, actor access.Actor, panelID, status, reason string) (*logistics.Panel, error)
	ConfirmAnomaly(ctx context.Context, actor access.Actor, anomalyID, note string) (*logistics.Anomaly, error)
	DismissAnomaly(ctx context.Context, actor access.Actor, anomalyID, reason string) (*logistics.Anomaly, error)
	CreateManifest(ctx context.Context, actor access.Actor, req workflow.CreateManifestRequest) (*logistics.Manifest, error)

	GetUnit(ctx context.Context, id string) (*workflow.UnitView, error)
	GetUnitByTag(ctx context.Context, tag string) (*unit.Unit, error)
	ListUnits(ctx context.Context, opts repository.ListUnitsOptions) ([]unit.Unit, error)
	GetActivity(ctx context.Context, id string) (*activity.Instance, error)
	GraphView(ctx context.Context, unitID string) (*dependency.View, error)
	GetInspection(ctx context.Context, id string) (*inspection.Record, error)
	ListInspections(ctx context.Context, activityID string) ([]inspection.Record, error)
	GetPanel(ctx context.Context, idOrBarcode string) (*workflow.PanelView, error)
	ListAnomalies(ctx context.Context, opts repository.ListAnomaliesOptions) ([]logistics.Anomaly, error)
	GetManifest(ctx context.Context, id string) (*logistics.Manifest, error)
	AuditTrail(ctx context.Context, entityType, entityID string) ([]audit.Entry, error)
	VerifyAuditChain(ctx context.Context, entityType, entityID string) (*workflow.ChainReport, error)
}

// Dispatcher routes a method name and raw JSON params to the engine.
type Dispatcher struct {
	engine Engine
}

// NewDispatcher creates a dispatcher over engine.
func NewDispatcher(engine Engine) *Dispatcher {
	return &Dispatcher{engine: engine}
}

// Handle runs method on behalf of actor. Errors are *APIError whenever the engine
// reported a known rejection.
func (d *Dispatcher) Handle(ctx context.Context, actor access.Actor, method string, params json.RawMessage) (any, error) {
	result, err := d.handle(ctx, actor, method, params)
	if err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func (d *Dispatcher) handle(ctx context.Context, actor access.Actor, method string, params json.RawMessage) (any, error) {
	e := d.engine
	switch method {
	// Units
	case "create_unit":
		req, err := decode[workflow.CreateUnitRequest](method, params)
		if err != nil {
			return nil, err
		}
		return e.CreateUnit(ctx, actor, req)
	case "add_activity":
		req, err := decode[workflow.AddActivityRequest](method, params)
		if err != nil {
			return nil, err
		}
		return e.AddActivity(ctx, actor, req)
	case "move_unit":
		req, err := decode[MoveUnitParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.MoveUnit(ctx, actor, req.ID, req.Location)
	case "recompute_unit":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.RecomputeUnit(ctx, actor, req.ID)

	// Activities
	case "start_activity":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.StartActivity(ctx, actor, req.ID)
	case "update_progress":
		req, err := decode[ProgressParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.UpdateProgress(ctx, actor, req.ID, req.Percent)
	case "correct_progress":
		req, err := decode[ProgressParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.CorrectProgress(ctx, actor, req.ID, req.Percent, req.Reason)
	case "hold_activity":
		req, err := decode[ReasonParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.HoldActivity(ctx, actor, req.ID, req.Reason)
	case "resume_activity":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.ResumeActivity(ctx, actor, req.ID)
	case "complete_activity":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.CompleteActivity(ctx, actor, req.ID)
	case "reopen_activity":
		req, err := decode[ReasonParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.ReopenActivity(ctx, actor, req.ID, req.Reason)
	case "assign_activity":
		req, err := decode[AssignParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.AssignActivity(ctx, actor, req.ID, req.Team, req.Member)

	// Dependencies
	case "add_dependency":
		req, err := decode[workflow.AddDependencyRequest](method, params)
		if err != nil {
			return nil, err
		}
		return e.AddDependency(ctx, actor, req)
	case "remove_dependency":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		if err := e.RemoveDependency(ctx, actor, req.ID); err != nil {
			return nil, err
		}
		return StatusResponse{Status: "removed"}, nil

	// Inspections
	case "open_inspection":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.OpenInspection(ctx, actor, req.ID)
	case "start_review":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.StartReview(ctx, actor, req.ID)
	case "resolve_checklist_item":
		req, err := decode[workflow.ResolveItemRequest](method, params)
		if err != nil {
			return nil, err
		}
		return e.ResolveChecklistItem(ctx, actor, req)
	case "approve_inspection":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.ApproveInspection(ctx, actor, req.ID)
	case "reject_inspection":
		req, err := decode[ReasonParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.RejectInspection(ctx, actor, req.ID, req.Reason)

	// Logistics
	case "register_panel":
		req, err := decode[workflow.RegisterPanelRequest](method, params)
		if err != nil {
			return nil, err
		}
		return e.RegisterPanel(ctx, actor, req)
	case "record_scan":
		req, err := decode[workflow.RecordScanRequest](method, params)
		if err != nil {
			return nil, err
		}
		return e.RecordScan(ctx, actor, req)
	case "decide_approval":
		req, err := decode[workflow.DecideApprovalRequest](method, params)
		if err != nil {
			return nil, err
		}
		return e.DecideApproval(ctx, actor, req)
	case "resubmit_panel":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.ResubmitPanel(ctx, actor, req.ID)
	case "advance_location":
		req, err := decode[AdvanceLocationParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.AdvanceLocation(ctx, actor, req.PanelID, req.Status, req.Reason)
	case "confirm_anomaly":
		req, err := decode[AnomalyParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.ConfirmAnomaly(ctx, actor, req.ID, req.Note)
	case "dismiss_anomaly":
		req, err := decode[AnomalyParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.DismissAnomaly(ctx, actor, req.ID, req.Reason)
	case "create_manifest":
		req, err := decode[workflow.CreateManifestRequest](method, params)
		if err != nil {
			return nil, err
		}
		return e.CreateManifest(ctx, actor, req)

	// Projections
	case "get_unit":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		if req.ID == "" {
			tag, err := decode[TagParams](method, params)
			if err != nil {
				return nil, err
			}
			if tag.Tag != "" {
				u, err := e.GetUnitByTag(ctx, tag.Tag)
				if err != nil {
					return nil, err
				}
				req.ID = u.ID
			}
		}
		return e.GetUnit(ctx, req.ID)
	case "list_units":
		req, err := decode[ListUnitsParams](method, params)
		if err != nil {
			return nil, err
		}
		units, err := e.ListUnits(ctx, repository.ListUnitsOptions{
			Status: unit.Status(req.Status),
			Type:   req.Type,
			Limit:  req.Limit,
			Offset: req.Offset,
		})
		if err != nil {
			return nil, err
		}
		if units == nil {
			units = []unit.Unit{}
		}
		return units, nil
	case "get_activity":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.GetActivity(ctx, req.ID)
	case "graph_view":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.GraphView(ctx, req.ID)
	case "get_inspection":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.GetInspection(ctx, req.ID)
	case "list_inspections":
		req, err := decode[ListInspectionsParams](method, params)
		if err != nil {
			return nil, err
		}
		records, err := e.ListInspections(ctx, req.ActivityID)
		if err != nil {
			return nil, err
		}
		if records == nil {
			records = []inspection.Record{}
		}
		return records, nil
	case "get_panel":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.GetPanel(ctx, req.ID)
	case "list_anomalies":
		req, err := decode[ListAnomaliesParams](method, params)
		if err != nil {
			return nil, err
		}
		anomalies, err := e.ListAnomalies(ctx, repository.ListAnomaliesOptions{
			Status:  logistics.AnomalyStatus(req.Status),
			PanelID: req.PanelID,
			Barcode: req.Barcode,
			Limit:   req.Limit,
		})
		if err != nil {
			return nil, err
		}
		if anomalies == nil {
			anomalies = []logistics.Anomaly{}
		}
		return anomalies, nil
	case "get_manifest":
		req, err := decode[IDParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.GetManifest(ctx, req.ID)
	case "audit_trail":
		req, err := decode[AuditParams](method, params)
		if err != nil {
			return nil, err
		}
		entries, err := e.AuditTrail(ctx, req.EntityType, req.EntityID)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []audit.Entry{}
		}
		return entries, nil
	case "verify_audit_chain":
		req, err := decode[AuditParams](method, params)
		if err != nil {
			return nil, err
		}
		return e.VerifyAuditChain(ctx, req.EntityType, req.EntityID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
}

func decode[T any](method string, params json.RawMessage) (T, error) {
	var out T
	if len(params) == 0 || string(params) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(params, &out); err != nil {
		return out, invalidParams(method, err)
	}
	return out, nil
}
