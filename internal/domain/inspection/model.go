// Package inspection models inspection records (WIRs) and the checklist gate that
// promotes or rejects them.
package inspection

import (
	"fmt"
	"time"
)

// Status is the state of one inspection revision.
type Status string

const (
	StatusRequested   Status = "Requested"
	StatusUnderReview Status = "UnderReview"
	StatusApproved    Status = "Approved"
	StatusRejected    Status = "Rejected"
)

// ItemState is the outcome recorded against one checklist item.
type ItemState string

const (
	ItemUnresolved ItemState = ""
	ItemPass       ItemState = "pass"
	ItemFail       ItemState = "fail"
	ItemNA         ItemState = "na"
)

// ParseItemState accepts the outcomes a reviewer may record.
func ParseItemState(s string) (ItemState, bool) {
	switch ItemState(s) {
	case ItemPass, ItemFail, ItemNA:
		return ItemState(s), true
	}
	return ItemUnresolved, false
}

// Cleared reports whether the item allows approval.
func (s ItemState) Cleared() bool {
	return s == ItemPass || s == ItemNA
}

// ItemTemplate is a predefined catalog item copied into a record when it is opened.
type ItemTemplate struct {
	SectionCode  string
	SectionTitle string
	ItemCode     string
	Description  string
}

// ChecklistItem is a record's snapshot copy of a catalog item plus its outcome.
type ChecklistItem struct {
	ID           string     `json:"id"`
	RecordID     string     `json:"record_id"`
	Position     int        `json:"position"`
	SectionCode  string     `json:"section_code"`
	SectionTitle string     `json:"section_title"`
	ItemCode     string     `json:"item_code"`
	Description  string     `json:"description"`
	State        ItemState  `json:"state"`
	Note         string     `json:"note,omitempty"`
	ResolvedBy   string     `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Record is one revision of an inspection against an activity instance.
type Record struct {
	ID                string          `json:"id"`
	Number            string          `json:"number"`
	UnitID            string          `json:"unit_id"`
	ActivityID        string          `json:"activity_id"`
	CheckpointCode    string          `json:"checkpoint_code"`
	CatalogVersion    string          `json:"catalog_version"`
	Revision          int             `json:"revision"`
	ResubmissionCount int             `json:"resubmission_count"`
	Status            Status          `json:"status"`
	RejectionReason   string          `json:"rejection_reason,omitempty"`
	RequestedBy       string          `json:"requested_by"`
	ReviewedBy        string          `json:"reviewed_by,omitempty"`
	DecidedBy         string          `json:"decided_by,omitempty"`
	DecidedAt         *time.Time      `json:"decided_at,omitempty"`
	Items             []ChecklistItem `json:"items"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// RecordNumber formats the human-facing WIR number.
func RecordNumber(unitTag, checkpointCode string, revision int) string {
	return fmt.Sprintf("%s/%s/R%d", unitTag, checkpointCode, revision)
}

// Open reports whether the revision still awaits a decision.
func (r Record) Open() bool {
	return r.Status == StatusRequested || r.Status == StatusUnderReview
}
