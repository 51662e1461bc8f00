package api

import (
	"github.com/shopspring/decimal"
)

type IDParams struct {
	ID string `json:"id"`
}

type ReasonParams struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type TagParams struct {
	Tag string `json:"tag"`
}

type MoveUnitParams struct {
	ID       string `json:"id"`
	Location string `json:"location"`
}

type ListUnitsParams struct {
	Status string `json:"status,omitempty"`
	Type   string `json:"type,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type ProgressParams struct {
	ID      string          `json:"id"`
	Percent decimal.Decimal `json:"percent"`
	Reason  string          `json:"reason,omitempty"`
}

type AssignParams struct {
	ID     string `json:"id"`
	Team   string `json:"team"`
	Member string `json:"member,omitempty"`
}

type ListInspectionsParams struct {
	ActivityID string `json:"activity_id"`
}

type AdvanceLocationParams struct {
	PanelID string `json:"panel_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

type AnomalyParams struct {
	ID     string `json:"id"`
	Note   string `json:"note,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type ListAnomaliesParams struct {
	Status  string `json:"status,omitempty"`
	PanelID string `json:"panel_id,omitempty"`
	Barcode string `json:"barcode,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type AuditParams struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// StatusResponse acknowledges an operation with no entity to return.
type StatusResponse struct {
	Status string `json:"status"`
}
