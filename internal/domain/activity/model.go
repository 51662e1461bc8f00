// Package activity models one manufacturing activity instance and its lifecycle.
package activity

import (
	"time"

	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an activity instance.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "InProgress"
	StatusOnHold     Status = "OnHold"
	StatusBlocked    Status = "Blocked"
	StatusCompleted  Status = "Completed"
)

// BlockReason records which cascade put an instance into Blocked.
type BlockReason string

const (
	BlockNone               BlockReason = ""
	BlockDependencyReopened BlockReason = "dependency_reopened"
	BlockInspectionRejected BlockReason = "inspection_rejected"
)

// Instance is one occurrence of a catalog activity on a production unit. Definition
// fields are copied at creation; definitions are immutable so the copy never drifts.
type Instance struct {
	ID               string          `json:"id"`
	UnitID           string          `json:"unit_id"`
	DefinitionID     string          `json:"definition_id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Sequence         int             `json:"sequence"`
	StandardDuration decimal.Decimal `json:"standard_duration_days"`
	IsCheckpoint     bool            `json:"is_inspection_checkpoint"`
	Status           Status          `json:"status"`
	BlockReason      BlockReason     `json:"block_reason,omitempty"`
	HoldReason       string          `json:"hold_reason,omitempty"`
	Progress         decimal.Decimal `json:"progress"`
	PlannedStart     *time.Time      `json:"planned_start,omitempty"`
	PlannedEnd       *time.Time      `json:"planned_end,omitempty"`
	ActualStart      *time.Time      `json:"actual_start,omitempty"`
	ActualEnd        *time.Time      `json:"actual_end,omitempty"`
	AssignedTeam     string          `json:"assigned_team,omitempty"`
	AssignedMember   string          `json:"assigned_member,omitempty"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Node returns the resolver's view of the instance.
func (in Instance) Node() dependency.Node {
	return dependency.Node{ID: in.ID, ActualStart: in.ActualStart, ActualEnd: in.ActualEnd}
}

// Snapshot builds a resolver snapshot from a unit's instances and edges.
func Snapshot(instances []Instance, edges []dependency.Edge) dependency.Snapshot {
	nodes := make(map[string]dependency.Node, len(instances))
	for _, in := range instances {
		nodes[in.ID] = in.Node()
	}
	return dependency.Snapshot{Nodes: nodes, Edges: edges}
}
