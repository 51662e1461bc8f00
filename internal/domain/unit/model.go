// Package unit models production units and derives their status and progress.
package unit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the derived state of a production unit.
type Status string

const (
	StatusNotStarted Status = "NotStarted"
	StatusInProgress Status = "InProgress"
	StatusOnHold     Status = "OnHold"
	StatusCompleted  Status = "Completed"
)

// Unit is a trackable manufactured module ("box"). Status and Progress are written
// only by the aggregator.
type Unit struct {
	ID         string            `json:"id"`
	Tag        string            `json:"tag"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Status     Status            `json:"status"`
	Progress   decimal.Decimal   `json:"progress"`
	Location   string            `json:"location,omitempty"`
	Version    int64             `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
