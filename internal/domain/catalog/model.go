// Package catalog holds the immutable, versioned reference data loaded at startup:
// activity definitions, checklist sections and per-unit-type activity plans.
package catalog

import (
	"time"

	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/shopspring/decimal"
)

// Definition is one catalog activity. Its ID is code@version, so a changed definition
// is a new row rather than a mutation.
type Definition struct {
	ID                string          `json:"id"`
	Code              string          `json:"code"`
	CatalogVersion    string          `json:"catalog_version"`
	Name              string          `json:"name"`
	Stage             string          `json:"stage"`
	Sequence          int             `json:"sequence"`
	StandardDuration  decimal.Decimal `json:"standard_duration_days"`
	IsCheckpoint      bool            `json:"is_inspection_checkpoint"`
	CheckpointCode    string          `json:"checkpoint_code,omitempty"`
	ChecklistSections []string        `json:"checklist_sections,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// DefinitionID formats the immutable identifier of a definition.
func DefinitionID(code, version string) string {
	return code + "@" + version
}

// SameContent reports whether two definitions with the same ID describe the same activity.
func (d Definition) SameContent(o Definition) bool {
	if d.ID != o.ID || d.Code != o.Code || d.Name != o.Name || d.Stage != o.Stage ||
		d.Sequence != o.Sequence || !d.StandardDuration.Equal(o.StandardDuration) ||
		d.IsCheckpoint != o.IsCheckpoint || d.CheckpointCode != o.CheckpointCode ||
		len(d.ChecklistSections) != len(o.ChecklistSections) {
		return false
	}
	for i := range d.ChecklistSections {
		if d.ChecklistSections[i] != o.ChecklistSections[i] {
			return false
		}
	}
	return true
}

// PredefinedItem is a reusable checklist item.
type PredefinedItem struct {
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description" yaml:"description"`
}

// Section groups predefined items.
type Section struct {
	Code  string           `json:"code" yaml:"code"`
	Title string           `json:"title" yaml:"title"`
	Items []PredefinedItem `json:"items" yaml:"items"`
}

// StepDependency is a planned edge from an earlier step.
type StepDependency struct {
	Activity string          `json:"activity" yaml:"activity"`
	Type     dependency.Type `json:"type" yaml:"type"`
	LagDays  int             `json:"lag_days" yaml:"lag_days"`
}

// PlannedActivity is one step of a plan that applies to a concrete unit.
type PlannedActivity struct {
	Definition Definition
	DependsOn  []StepDependency
}
