// Package access carries caller identity and the permission keys checked before every mutation.
package access

import (
	"strings"

	"github.com/rpggio/fabtrack/internal/domain"
)

// Permission is a granted permission key such as "wir.approve".
type Permission string

const (
	PermUnitCreate          Permission = "boxes.create"
	PermUnitUpdateStatus    Permission = "boxes.update-status"
	PermActivityCreate      Permission = "activities.create"
	PermActivityStart       Permission = "activities.start"
	PermActivityProgress    Permission = "activities.update-progress"
	PermActivityCorrect     Permission = "activities.correct"
	PermActivityHold        Permission = "activities.hold"
	PermActivityComplete    Permission = "activities.complete"
	PermActivityReopen      Permission = "activities.reopen"
	PermActivityAssign      Permission = "activities.assign"
	PermDependencyManage    Permission = "dependencies.manage"
	PermInspectionCreate    Permission = "wir.create"
	PermInspectionReview    Permission = "wir.review"
	PermInspectionApprove   Permission = "wir.approve"
	PermInspectionReject    Permission = "wir.reject"
	PermPanelRegister       Permission = "panels.register"
	PermPanelScan           Permission = "panels.scan"
	PermPanelApproveFirst   Permission = "panels.approve-first"
	PermPanelApproveSecond  Permission = "panels.approve-second"
	PermPanelUpdateLocation Permission = "panels.update-location"
	PermPanelResolveAnomaly Permission = "panels.resolve-anomaly"
	PermManifestCreate      Permission = "manifests.create"
)

// SystemActorID identifies engine-triggered cascades in the audit log.
const SystemActorID = "system"

// Actor is the opaque caller identity supplied by the authentication collaborator.
type Actor struct {
	ID          string       `json:"id" yaml:"id"`
	Permissions []Permission `json:"permissions" yaml:"permissions"`
	system      bool
}

// System returns the actor used for engine-triggered transitions.
func System() Actor {
	return Actor{ID: SystemActorID, system: true}
}

// NewActor normalizes an identity and its grants.
func NewActor(id string, perms ...Permission) Actor {
	out := Actor{ID: strings.TrimSpace(id)}
	for _, p := range perms {
		p = Permission(strings.TrimSpace(string(p)))
		if p != "" {
			out.Permissions = append(out.Permissions, p)
		}
	}
	return out
}

// IsSystem reports whether the actor is the engine itself.
func (a Actor) IsSystem() bool {
	return a.system
}

// Has reports whether the actor holds the permission key. "*" grants everything.
func (a Actor) Has(p Permission) bool {
	if a.system {
		return true
	}
	for _, granted := range a.Permissions {
		if granted == p || granted == "*" {
			return true
		}
	}
	return false
}

// Require returns a PermissionError when the actor lacks the key.
func (a Actor) Require(p Permission) error {
	if strings.TrimSpace(a.ID) == "" {
		return domain.Validation("actor", "identity required")
	}
	if !a.Has(p) {
		return &domain.PermissionError{ActorID: a.ID, Permission: string(p)}
	}
	return nil
}
