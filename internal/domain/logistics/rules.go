package logistics

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpggio/fabtrack/internal/domain"
)

const entityName = "panel"

// DedupKey is the scan idempotency key: barcode, scan type and client time to the second.
func DedupKey(barcode string, t ScanType, clientTime time.Time) string {
	return fmt.Sprintf("%s|%s|%s", barcode, t, clientTime.UTC().Truncate(time.Second).Format(time.RFC3339))
}

// ScanOutcome is what a scan does to the official location status.
type ScanOutcome struct {
	Advance bool
	Target  LocationStatus
	Anomaly AnomalyKind
}

// EvaluateScan decides whether a scan advances the panel or is held as an anomaly.
// Only a scan naming the next status in the chain advances on its own.
func EvaluateScan(p Panel, t ScanType) ScanOutcome {
	target, ok := t.Target()
	if !ok {
		return ScanOutcome{}
	}
	cur, next := p.Location.Rank(), target.Rank()
	switch {
	case next == cur:
		return ScanOutcome{Target: target}
	case next < cur:
		return ScanOutcome{Target: target, Anomaly: AnomalyRegression}
	case next > cur+1:
		return ScanOutcome{Target: target, Anomaly: AnomalyOutOfOrder}
	case target == Installed && !p.BothApproved():
		return ScanOutcome{Target: target, Anomaly: AnomalyApprovalsMissing}
	}
	return ScanOutcome{Advance: true, Target: target}
}

// Advance moves the official status forward. Skipping statuses is allowed for
// operators; moving backwards never is. changed is false for a same-status move.
func Advance(p Panel, to LocationStatus, now time.Time) (out Panel, changed bool, err error) {
	if to.Rank() < 0 {
		return p, false, domain.Validation("location_status", "unknown status "+string(to))
	}
	if to.Rank() < p.Location.Rank() {
		return p, false, domain.InvalidTransition(entityName, string(p.Location), string(to), ErrLocationRegression)
	}
	if to == Installed && !p.BothApproved() {
		return p, false, domain.InvalidTransition(entityName, string(p.Location), string(to), ErrApprovalsIncomplete)
	}
	if to == p.Location {
		return p, false, nil
	}
	out = p
	out.Location = to
	out.UpdatedAt = now
	return out, true, nil
}

// Decide records a decision on one approval stage.
func Decide(p Panel, stage Stage, d Decision, actorID, notes string, now time.Time) (Panel, error) {
	if d != DecisionApproved && d != DecisionRejected {
		return p, domain.Validation("decision", "must be Approved or Rejected")
	}
	if stage != StageFirst && stage != StageSecond {
		return p, domain.Validation("stage", "must be 1 or 2")
	}
	if p.Rejected() {
		return p, domain.InvalidTransition(entityName, string(DecisionRejected), string(d), ErrResubmissionRequired)
	}
	out := p
	slot := &out.First
	if stage == StageSecond {
		slot = &out.Second
		if d == DecisionApproved && p.First.Decision != DecisionApproved {
			return p, domain.InvalidTransition(entityName, string(p.Second.Decision), string(d), ErrFirstStageRequired)
		}
	}
	if slot.Decision != DecisionPending {
		return p, domain.InvalidTransition(entityName, string(slot.Decision), string(d), ErrAlreadyDecided)
	}
	*slot = Approval{Decision: d, ApproverID: actorID, DecidedAt: &now, Notes: strings.TrimSpace(notes)}
	out.UpdatedAt = now
	return out, nil
}

// Resubmit resets both stages after a rejection.
func Resubmit(p Panel, now time.Time) (Panel, error) {
	if !p.Rejected() {
		return p, domain.InvalidTransition(entityName, string(p.First.Decision), string(DecisionPending), ErrNotRejected)
	}
	out := p
	out.First = Approval{Decision: DecisionPending}
	out.Second = Approval{Decision: DecisionPending}
	out.ResubmissionCount++
	out.UpdatedAt = now
	return out, nil
}

// NewAnomaly builds an open anomaly for a scan.
func NewAnomaly(id string, scan ScanEvent, p *Panel, kind AnomalyKind, target LocationStatus, now time.Time) Anomaly {
	a := Anomaly{
		ID:        id,
		ScanID:    scan.ID,
		Barcode:   scan.Barcode,
		Kind:      kind,
		Target:    target,
		Status:    AnomalyOpen,
		CreatedAt: now,
	}
	if p != nil {
		a.PanelID = p.ID
		a.From = p.Location
	}
	return a
}

// Close marks an open anomaly handled.
func Close(a Anomaly, status AnomalyStatus, actorID, note string, now time.Time) (Anomaly, error) {
	if a.Status != AnomalyOpen {
		return a, domain.InvalidTransition("anomaly", string(a.Status), string(status), ErrAnomalyClosed)
	}
	out := a
	out.Status = status
	out.ResolvedBy = actorID
	out.ResolvedAt = &now
	out.Note = strings.TrimSpace(note)
	return out, nil
}
