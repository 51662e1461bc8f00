// Package logistics models panels, their scan history, two-stage sign-off and
// chain-of-custody anomalies.
package logistics

import (
	"strings"
	"time"
)

// LocationStatus is a panel's official position in the delivery chain.
type LocationStatus string

const (
	AtFactory  LocationStatus = "AtFactory"
	Dispatched LocationStatus = "Dispatched"
	InTransit  LocationStatus = "InTransit"
	Delivered  LocationStatus = "Delivered"
	Installed  LocationStatus = "Installed"
)

var locationOrder = []LocationStatus{AtFactory, Dispatched, InTransit, Delivered, Installed}

// Rank returns the position in the delivery chain, or -1 for unknown values.
func (l LocationStatus) Rank() int {
	for i, s := range locationOrder {
		if s == l {
			return i
		}
	}
	return -1
}

// ParseLocationStatus validates a status name.
func ParseLocationStatus(s string) (LocationStatus, bool) {
	l := LocationStatus(strings.TrimSpace(s))
	return l, l.Rank() >= 0
}

// ScanType is what a field device reports when scanning a barcode.
type ScanType string

const (
	ScanDispatch ScanType = "dispatch"
	ScanTransit  ScanType = "transit"
	ScanDelivery ScanType = "delivery"
	ScanInstall  ScanType = "install"
	ScanCheck    ScanType = "check"
)

// ParseScanType validates a scan type.
func ParseScanType(s string) (ScanType, bool) {
	switch t := ScanType(strings.ToLower(strings.TrimSpace(s))); t {
	case ScanDispatch, ScanTransit, ScanDelivery, ScanInstall, ScanCheck:
		return t, true
	}
	return "", false
}

// Target returns the location status a scan type drives. Check scans drive none.
func (t ScanType) Target() (LocationStatus, bool) {
	switch t {
	case ScanDispatch:
		return Dispatched, true
	case ScanTransit:
		return InTransit, true
	case ScanDelivery:
		return Delivered, true
	case ScanInstall:
		return Installed, true
	}
	return "", false
}

// Decision is the state of one approval stage.
type Decision string

const (
	DecisionPending  Decision = "Pending"
	DecisionApproved Decision = "Approved"
	DecisionRejected Decision = "Rejected"
)

// Stage selects one of the two sequential approvals.
type Stage int

const (
	StageFirst  Stage = 1
	StageSecond Stage = 2
)

// Approval is one sign-off stage.
type Approval struct {
	Decision   Decision   `json:"decision"`
	ApproverID string     `json:"approver_id,omitempty"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Panel is a trackable sub-component of a production unit.
type Panel struct {
	ID                string         `json:"id"`
	Barcode           string         `json:"barcode"`
	UnitID            string         `json:"unit_id"`
	PanelType         string         `json:"panel_type"`
	Location          LocationStatus `json:"location_status"`
	LastSeenAt        string         `json:"last_seen_at,omitempty"`
	First             Approval       `json:"first_approval"`
	Second            Approval       `json:"second_approval"`
	ManifestID        string         `json:"manifest_id,omitempty"`
	ResubmissionCount int            `json:"resubmission_count"`
	Version           int64          `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// BothApproved reports whether the panel may be installed.
func (p Panel) BothApproved() bool {
	return p.First.Decision == DecisionApproved && p.Second.Decision == DecisionApproved
}

// Rejected reports whether either stage halted progression.
func (p Panel) Rejected() bool {
	return p.First.Decision == DecisionRejected || p.Second.Decision == DecisionRejected
}

// GeoPoint is an optional device coordinate.
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// ScanEvent is an immutable observation. PanelID is empty when the barcode was
// unknown at ingestion; reconciliation is recorded separately.
type ScanEvent struct {
	ID         string    `json:"id"`
	Barcode    string    `json:"barcode"`
	PanelID    string    `json:"panel_id,omitempty"`
	ScanType   ScanType  `json:"scan_type"`
	Location   string    `json:"location"`
	Geo        *GeoPoint `json:"geo,omitempty"`
	ActorID    string    `json:"actor_id"`
	ClientTime time.Time `json:"client_time"`
	ServerTime time.Time `json:"server_time"`
	DedupKey   string    `json:"dedup_key"`
	Unresolved bool      `json:"unresolved"`
}

// AnomalyKind classifies a chain-of-custody irregularity.
type AnomalyKind string

const (
	AnomalyOutOfOrder        AnomalyKind = "out_of_order"
	AnomalyRegression        AnomalyKind = "regression"
	AnomalyApprovalsMissing  AnomalyKind = "approvals_missing"
	AnomalyUnresolvedBarcode AnomalyKind = "unresolved_barcode"
)

// AnomalyStatus tracks operator handling.
type AnomalyStatus string

const (
	AnomalyOpen       AnomalyStatus = "Open"
	AnomalyConfirmed  AnomalyStatus = "Confirmed"
	AnomalyDismissed  AnomalyStatus = "Dismissed"
	AnomalyReconciled AnomalyStatus = "Reconciled"
)

// Anomaly is a scan that did not advance the official status on its own.
type Anomaly struct {
	ID         string         `json:"id"`
	ScanID     string         `json:"scan_id"`
	Barcode    string         `json:"barcode"`
	PanelID    string         `json:"panel_id,omitempty"`
	Kind       AnomalyKind    `json:"kind"`
	From       LocationStatus `json:"from,omitempty"`
	Target     LocationStatus `json:"target,omitempty"`
	Status     AnomalyStatus  `json:"status"`
	Note       string         `json:"note,omitempty"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Manifest groups panels received together.
type Manifest struct {
	ID           string    `json:"id"`
	Carrier      string    `json:"carrier"`
	Vehicle      string    `json:"vehicle"`
	DeliveryDate time.Time `json:"delivery_date"`
	PanelIDs     []string  `json:"panel_ids"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}
