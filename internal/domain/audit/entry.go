// Package audit builds the immutable, per-entity hash-chained transition log.
package audit

import (
	"time"
)

// Entity types recorded in the log.
const (
	EntityUnit       = "unit"
	EntityActivity   = "activity"
	EntityDependency = "dependency"
	EntityInspection = "inspection"
	EntityPanel      = "panel"
	EntityScan       = "scan"
	EntityAnomaly    = "anomaly"
	EntityManifest   = "manifest"
)

// Draft is a transition about to be recorded.
type Draft struct {
	EntityType string
	EntityID   string
	Action     string
	PriorState string
	NewState   string
	ActorID    string
	Reason     string
	Details    map[string]string
}

// Entry is one committed audit record. Seq and Timestamp increase strictly per entity.
type Entry struct {
	ID         string            `json:"id"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Seq        int64             `json:"seq"`
	Action     string            `json:"action"`
	PriorState string            `json:"prior_state"`
	NewState   string            `json:"new_state"`
	ActorID    string            `json:"actor_id"`
	Reason     string            `json:"reason,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	PrevHash   string            `json:"prev_hash"`
	Hash       string            `json:"hash"`
}

// Next chains a draft onto the entity's latest entry. prev is nil for the first entry.
// The timestamp is server-assigned: now, or 1µs after prev when the clock has not advanced.
func Next(prev *Entry, d Draft, id string, now time.Time) (Entry, error) {
	e := Entry{
		ID:         id,
		EntityType: d.EntityType,
		EntityID:   d.EntityID,
		Seq:        1,
		Action:     d.Action,
		PriorState: d.PriorState,
		NewState:   d.NewState,
		ActorID:    d.ActorID,
		Reason:     d.Reason,
		Details:    d.Details,
		Timestamp:  now.UTC().Truncate(time.Microsecond),
	}
	if prev != nil {
		e.Seq = prev.Seq + 1
		e.PrevHash = prev.Hash
		if !e.Timestamp.After(prev.Timestamp) {
			e.Timestamp = prev.Timestamp.Add(time.Microsecond)
		}
	}
	h, err := Digest(e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = h
	return e, nil
}
