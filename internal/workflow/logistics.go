package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/access"
	"github.com/rpggio/fabtrack/internal/domain/audit"
	"github.com/rpggio/fabtrack/internal/domain/logistics"
	"github.com/rpggio/fabtrack/internal/repository"
)

// RegisterPanelRequest contains fields for registering a panel
type RegisterPanelRequest struct {
	Barcode   string `json:"barcode"`
	UnitID    string `json:"unit_id"`
	PanelType string `json:"panel_type"`
}

// RegisterPanel creates a panel at the factory and reconciles scans of its barcode that
// arrived before it existed.
func (e *Engine) RegisterPanel(ctx context.Context, actor access.Actor, req RegisterPanelRequest) (*logistics.Panel, error) {
	barcode := strings.TrimSpace(req.Barcode)
	if barcode == "" {
		return nil, domain.Validation("barcode", "required")
	}

	var out logistics.Panel
	err := e.run(ctx, "register_panel", actor, access.PermPanelRegister, func(t *txn) error {
		if _, err := t.loadUnit(req.UnitID); err != nil {
			return err
		}
		if _, err := t.tx.Panels().GetByBarcode(ctx, barcode); err == nil {
			return domain.Validation("barcode", "already registered: "+barcode)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		pending, err := t.tx.Scans().ListUnresolved(ctx, barcode)
		if err != nil {
			return err
		}

		p := logistics.Panel{
			ID:        e.newID(),
			Barcode:   barcode,
			UnitID:    req.UnitID,
			PanelType: strings.TrimSpace(req.PanelType),
			Location:  logistics.AtFactory,
			First:     logistics.Approval{Decision: logistics.DecisionPending},
			Second:    logistics.Approval{Decision: logistics.DecisionPending},
			Version:   1,
			CreatedAt: t.now,
			UpdatedAt: t.now,
		}
		if n := len(pending); n > 0 {
			p.LastSeenAt = pending[n-1].Location
		}
		if err := t.tx.Panels().Create(ctx, &p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return domain.Validation("barcode", "already registered: "+barcode)
			}
			return err
		}
		err = t.audit(audit.Draft{
			EntityType: audit.EntityPanel,
			EntityID:   p.ID,
			Action:     "registered",
			NewState:   string(p.Location),
			Details:    map[string]string{"barcode": barcode, "unit_id": p.UnitID},
		})
		if err != nil {
			return err
		}

		if err := t.reconcile(p, pending); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// reconcile links unresolved scans to the new panel and closes their anomalies. Scan
// rows stay untouched.
func (t *txn) reconcile(p logistics.Panel, scans []logistics.ScanEvent) error {
	for _, s := range scans {
		if err := t.tx.Scans().Link(t.ctx, s.ID, p.ID, t.now); err != nil {
			return err
		}
		err := t.audit(audit.Draft{
			EntityType: audit.EntityScan,
			EntityID:   s.ID,
			Action:     "reconciled",
			PriorState: "unresolved",
			NewState:   "linked",
			Details:    map[string]string{"panel_id": p.ID},
		})
		if err != nil {
			return err
		}
	}

	open, err := t.tx.Anomalies().List(t.ctx, repository.ListAnomaliesOptions{
		Status:  logistics.AnomalyOpen,
		Barcode: p.Barcode,
	})
	if err != nil {
		return err
	}
	for _, a := range open {
		if a.Kind != logistics.AnomalyUnresolvedBarcode {
			continue
		}
		if _, err := t.closeAnomaly(a, logistics.AnomalyReconciled, "panel registered"); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) closeAnomaly(a logistics.Anomaly, status logistics.AnomalyStatus, note string) (logistics.Anomaly, error) {
	next, err := logistics.Close(a, status, t.actor.ID, note, t.now)
	if err != nil {
		return a, err
	}
	if err := t.tx.Anomalies().Update(t.ctx, &next, a.Version); err != nil {
		return a, err
	}
	err = t.audit(audit.Draft{
		EntityType: audit.EntityAnomaly,
		EntityID:   a.ID,
		Action:     strings.ToLower(string(status)),
		PriorState: string(a.Status),
		NewState:   string(next.Status),
		Reason:     next.Note,
	})
	return next, err
}

// RecordScanRequest is one field-device observation
type RecordScanRequest struct {
	Barcode    string              `json:"barcode"`
	ScanType   string              `json:"scan_type"`
	Location   string              `json:"location"`
	Geo        *logistics.GeoPoint `json:"geo,omitempty"`
	ClientTime time.Time           `json:"timestamp"`
}

// ScanResult reports what a scan did.
type ScanResult struct {
	Scan      logistics.ScanEvent `json:"scan"`
	Duplicate bool                `json:"duplicate"`
	Panel     *logistics.Panel    `json:"panel,omitempty"`
	Anomaly   *logistics.Anomaly  `json:"anomaly,omitempty"`
}

// RecordScan ingests a scan. A resubmission with the same barcode, type and client
// second inside the dedup window returns the stored event. Unknown barcodes are
// accepted, flagged unresolved and raised as an anomaly.
func (e *Engine) RecordScan(ctx context.Context, actor access.Actor, req RecordScanRequest) (*ScanResult, error) {
	barcode := strings.TrimSpace(req.Barcode)
	if barcode == "" {
		return nil, domain.Validation("barcode", "required")
	}
	scanType, ok := logistics.ParseScanType(req.ScanType)
	if !ok {
		return nil, domain.Validation("scan_type", "unknown scan type "+req.ScanType)
	}
	if req.ClientTime.IsZero() {
		return nil, domain.Validation("timestamp", "required")
	}
	key := logistics.DedupKey(barcode, scanType, req.ClientTime)

	var res ScanResult
	err := e.run(ctx, "record_scan", actor, access.PermPanelScan, func(t *txn) error {
		res = ScanResult{}
		existing, err := t.tx.Scans().FindRecent(ctx, key, t.now.Add(-e.cfg.ScanDedupWindow))
		switch {
		case err == nil:
			res.Scan = *existing
			res.Duplicate = true
			return nil
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		last, err := t.tx.Scans().LastServerTime(ctx, barcode)
		if err != nil {
			return err
		}
		serverTime := t.now
		if !serverTime.After(last) {
			serverTime = last.Add(time.Microsecond)
		}

		var panel *logistics.Panel
		switch p, err := t.tx.Panels().GetByBarcode(ctx, barcode); {
		case err == nil:
			panel = p
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		scan := logistics.ScanEvent{
			ID:         e.newID(),
			Barcode:    barcode,
			ScanType:   scanType,
			Location:   strings.TrimSpace(req.Location),
			Geo:        req.Geo,
			ActorID:    actor.ID,
			ClientTime: req.ClientTime.UTC(),
			ServerTime: serverTime,
			DedupKey:   key,
			Unresolved: panel == nil,
		}
		if panel != nil {
			scan.PanelID = panel.ID
		}
		if err := t.tx.Scans().Create(ctx, &scan); err != nil {
			return err
		}
		err = t.audit(audit.Draft{
			EntityType: audit.EntityScan,
			EntityID:   scan.ID,
			Action:     "recorded",
			NewState:   string(scan.ScanType),
			Details:    map[string]string{"barcode": barcode, "location": scan.Location},
		})
		if err != nil {
			return err
		}
		res.Scan = scan

		if panel == nil {
			a, err := t.raiseAnomaly(scan, nil, logistics.AnomalyUnresolvedBarcode, "")
			res.Anomaly = a
			return err
		}

		outcome := logistics.EvaluateScan(*panel, scanType)
		next := *panel
		next.LastSeenAt = scan.Location
		next.UpdatedAt = t.now
		if outcome.Advance {
			next.Location = outcome.Target
		}
		if err := t.tx.Panels().Update(ctx, &next, panel.Version); err != nil {
			return err
		}
		action := "scanned"
		if outcome.Advance {
			action = "location_advanced"
		}
		err = t.audit(audit.Draft{
			EntityType: audit.EntityPanel,
			EntityID:   panel.ID,
			Action:     action,
			PriorState: string(panel.Location),
			NewState:   string(next.Location),
			Details:    map[string]string{"scan_id": scan.ID, "last_seen_at": next.LastSeenAt},
		})
		if err != nil {
			return err
		}
		res.Panel = &next

		if outcome.Anomaly != "" {
			a, err := t.raiseAnomaly(scan, panel, outcome.Anomaly, outcome.Target)
			res.Anomaly = a
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Duplicate {
		scansDeduplicated.Inc()
	}
	if res.Anomaly != nil {
		anomaliesRaised.WithLabelValues(string(res.Anomaly.Kind)).Inc()
		e.logger.Info("scan anomaly raised", "barcode", barcode, "kind", res.Anomaly.Kind, "anomaly_id", res.Anomaly.ID)
	}
	return &res, nil
}

func (t *txn) raiseAnomaly(scan logistics.ScanEvent, p *logistics.Panel, kind logistics.AnomalyKind, target logistics.LocationStatus) (*logistics.Anomaly, error) {
	a := logistics.NewAnomaly(t.e.newID(), scan, p, kind, target, t.now)
	a.Version = 1
	if err := t.tx.Anomalies().Create(t.ctx, &a); err != nil {
		return nil, err
	}
	err := t.audit(audit.Draft{
		EntityType: audit.EntityAnomaly,
		EntityID:   a.ID,
		Action:     "raised",
		NewState:   string(a.Status),
		Details: map[string]string{
			"kind":    string(kind),
			"scan_id": scan.ID,
			"from":    string(a.From),
			"target":  string(target),
		},
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *txn) panelGuard(id, action, reason string, details map[string]string, mutate func(cur logistics.Panel) (logistics.Panel, bool, error)) Guard[logistics.Panel] {
	return Guard[logistics.Panel]{
		Load: func() (logistics.Panel, error) {
			p, err := t.loadPanel(id)
			if err != nil {
				return logistics.Panel{}, err
			}
			return *p, nil
		},
		Mutate: func(cur logistics.Panel) (logistics.Panel, audit.Draft, error) {
			next, changed, err := mutate(cur)
			if err != nil || !changed {
				return cur, audit.Draft{}, err
			}
			return next, audit.Draft{
				EntityType: audit.EntityPanel,
				EntityID:   cur.ID,
				Action:     action,
				PriorState: panelState(cur),
				NewState:   panelState(next),
				Reason:     reason,
				Details:    details,
			}, nil
		},
		Save: func(cur logistics.Panel, next *logistics.Panel) error {
			return t.tx.Panels().Update(t.ctx, next, cur.Version)
		},
	}
}

// panelState renders location plus both approval decisions for the audit log.
func panelState(p logistics.Panel) string {
	return string(p.Location) + " " + string(p.First.Decision) + "/" + string(p.Second.Decision)
}

func (e *Engine) transitionPanel(ctx context.Context, op string, actor access.Actor, perm access.Permission, g func(t *txn) Guard[logistics.Panel]) (*logistics.Panel, error) {
	var out logistics.Panel
	err := e.run(ctx, op, actor, perm, func(t *txn) error {
		next, err := GuardedTransition(t, g(t))
		out = next
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DecideApprovalRequest is a decision on one sign-off stage
type DecideApprovalRequest struct {
	PanelID  string `json:"panel_id"`
	Stage    int    `json:"stage"`
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

// DecideApproval records a stage decision. Stage two approval needs stage one approved;
// a rejection on either stage halts decisions until the panel is resubmitted.
func (e *Engine) DecideApproval(ctx context.Context, actor access.Actor, req DecideApprovalRequest) (*logistics.Panel, error) {
	stage := logistics.Stage(req.Stage)
	var perm access.Permission
	switch stage {
	case logistics.StageFirst:
		perm = access.PermPanelApproveFirst
	case logistics.StageSecond:
		perm = access.PermPanelApproveSecond
	default:
		return nil, domain.Validation("stage", "must be 1 or 2")
	}
	decision := logistics.Decision(strings.TrimSpace(req.Decision))
	details := map[string]string{"stage": strconv.Itoa(req.Stage), "decision": string(decision)}

	return e.transitionPanel(ctx, "decide_approval", actor, perm, func(t *txn) Guard[logistics.Panel] {
		return t.panelGuard(req.PanelID, "approval_decided", req.Notes, details,
			func(cur logistics.Panel) (logistics.Panel, bool, error) {
				next, err := logistics.Decide(cur, stage, decision, actor.ID, req.Notes, t.now)
				return next, err == nil, err
			})
	})
}

// ResubmitPanel resets both approval stages after a rejection.
func (e *Engine) ResubmitPanel(ctx context.Context, actor access.Actor, panelID string) (*logistics.Panel, error) {
	return e.transitionPanel(ctx, "resubmit_panel", actor, access.PermPanelRegister, func(t *txn) Guard[logistics.Panel] {
		return t.panelGuard(panelID, "resubmitted", "", nil,
			func(cur logistics.Panel) (logistics.Panel, bool, error) {
				next, err := logistics.Resubmit(cur, t.now)
				return next, err == nil, err
			})
	})
}

// AdvanceLocation is an operator move of the official location status. Statuses may be
// skipped but never revisited; Installed needs both approvals.
func (e *Engine) AdvanceLocation(ctx context.Context, actor access.Actor, panelID, status, reason string) (*logistics.Panel, error) {
	to, ok := logistics.ParseLocationStatus(status)
	if !ok {
		return nil, domain.Validation("location_status", "unknown status "+status)
	}
	return e.transitionPanel(ctx, "advance_location", actor, access.PermPanelUpdateLocation, func(t *txn) Guard[logistics.Panel] {
		return t.panelGuard(panelID, "location_advanced", reason, nil,
			func(cur logistics.Panel) (logistics.Panel, bool, error) {
				return logistics.Advance(cur, to, t.now)
			})
	})
}

func (t *txn) anomalyGuard(id string, status logistics.AnomalyStatus, note string, check func(a logistics.Anomaly) error) Guard[logistics.Anomaly] {
	return Guard[logistics.Anomaly]{
		Load: func() (logistics.Anomaly, error) {
			a, err := t.loadAnomaly(id)
			if err != nil {
				return logistics.Anomaly{}, err
			}
			return *a, nil
		},
		Check: check,
		Mutate: func(cur logistics.Anomaly) (logistics.Anomaly, audit.Draft, error) {
			next, err := logistics.Close(cur, status, t.actor.ID, note, t.now)
			if err != nil {
				return cur, audit.Draft{}, err
			}
			return next, audit.Draft{
				EntityType: audit.EntityAnomaly,
				EntityID:   cur.ID,
				Action:     strings.ToLower(string(status)),
				PriorState: string(cur.Status),
				NewState:   string(next.Status),
				Reason:     next.Note,
			}, nil
		},
		Save: func(cur logistics.Anomaly, next *logistics.Anomaly) error {
			return t.tx.Anomalies().Update(t.ctx, next, cur.Version)
		},
	}
}

// ConfirmAnomaly applies the anomaly's target status to its panel under the same rules
// as AdvanceLocation, then closes it.
func (e *Engine) ConfirmAnomaly(ctx context.Context, actor access.Actor, anomalyID, note string) (*logistics.Anomaly, error) {
	var out logistics.Anomaly
	err := e.run(ctx, "confirm_anomaly", actor, access.PermPanelResolveAnomaly, func(t *txn) error {
		a, err := GuardedTransition(t, t.anomalyGuard(anomalyID, logistics.AnomalyConfirmed, note,
			func(cur logistics.Anomaly) error {
				if cur.Kind == logistics.AnomalyUnresolvedBarcode || cur.PanelID == "" {
					return domain.InvalidTransition("anomaly", string(cur.Status), string(logistics.AnomalyConfirmed), logistics.ErrRegistrationRequired)
				}
				return nil
			}))
		if err != nil {
			return err
		}
		if a.Target != "" {
			details := map[string]string{"anomaly_id": a.ID}
			_, err = GuardedTransition(t, t.panelGuard(a.PanelID, "location_confirmed", note, details,
				func(cur logistics.Panel) (logistics.Panel, bool, error) {
					return logistics.Advance(cur, a.Target, t.now)
				}))
			if err != nil {
				return err
			}
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DismissAnomaly closes an anomaly without touching the panel.
func (e *Engine) DismissAnomaly(ctx context.Context, actor access.Actor, anomalyID, reason string) (*logistics.Anomaly, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, domain.Validation("reason", "required")
	}
	var out logistics.Anomaly
	err := e.run(ctx, "dismiss_anomaly", actor, access.PermPanelResolveAnomaly, func(t *txn) error {
		a, err := GuardedTransition(t, t.anomalyGuard(anomalyID, logistics.AnomalyDismissed, reason, nil))
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateManifestRequest groups panels received together
type CreateManifestRequest struct {
	Carrier      string    `json:"carrier"`
	Vehicle      string    `json:"vehicle"`
	DeliveryDate time.Time `json:"delivery_date"`
	Barcodes     []string  `json:"barcodes"`
}

// CreateManifest records a delivery manifest. Every barcode must be a registered panel
// that is not already on a manifest.
func (e *Engine) CreateManifest(ctx context.Context, actor access.Actor, req CreateManifestRequest) (*logistics.Manifest, error) {
	if strings.TrimSpace(req.Carrier) == "" {
		return nil, domain.Validation("carrier", "required")
	}
	if req.DeliveryDate.IsZero() {
		return nil, domain.Validation("delivery_date", "required")
	}
	barcodes := uniqueStrings(req.Barcodes)
	if len(barcodes) == 0 {
		return nil, domain.Validation("barcodes", "at least one barcode required")
	}

	var out logistics.Manifest
	err := e.run(ctx, "create_manifest", actor, access.PermManifestCreate, func(t *txn) error {
		m := logistics.Manifest{
			ID:           e.newID(),
			Carrier:      strings.TrimSpace(req.Carrier),
			Vehicle:      strings.TrimSpace(req.Vehicle),
			DeliveryDate: req.DeliveryDate.UTC(),
			CreatedBy:    actor.ID,
			CreatedAt:    t.now,
		}
		panels := make([]logistics.Panel, 0, len(barcodes))
		for _, bc := range barcodes {
			p, err := t.tx.Panels().GetByBarcode(ctx, bc)
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("barcode %q: %w", bc, domain.ErrUnresolvedReference)
			}
			if err != nil {
				return err
			}
			if p.ManifestID != "" {
				return domain.Validation("barcodes", "panel "+bc+" already on manifest "+p.ManifestID)
			}
			panels = append(panels, *p)
		}
		if err := t.tx.Manifests().Create(ctx, &m); err != nil {
			return err
		}
		for _, p := range panels {
			next := p
			next.ManifestID = m.ID
			next.UpdatedAt = t.now
			if err := t.tx.Panels().Update(ctx, &next, p.Version); err != nil {
				return err
			}
			err := t.audit(audit.Draft{
				EntityType: audit.EntityPanel,
				EntityID:   p.ID,
				Action:     "manifested",
				PriorState: panelState(p),
				NewState:   panelState(next),
				Details:    map[string]string{"manifest_id": m.ID},
			})
			if err != nil {
				return err
			}
			m.PanelIDs = append(m.PanelIDs, p.ID)
		}
		out = m
		return t.audit(audit.Draft{
			EntityType: audit.EntityManifest,
			EntityID:   m.ID,
			Action:     "created",
			NewState:   "recorded",
			Details: map[string]string{
				"carrier": m.Carrier,
				"vehicle": m.Vehicle,
				"panels":  strconv.Itoa(len(m.PanelIDs)),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
