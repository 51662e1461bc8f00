package dependency

import (
	"time"
)

// Resolver evaluates incoming edges against committed instance dates. It holds no
// state beyond its clock and is safe for concurrent use.
type Resolver struct {
	now func() time.Time
}

// NewResolver creates a resolver using now as its clock; nil means time.Now.
func NewResolver(now func() time.Time) Resolver {
	if now == nil {
		now = time.Now
	}
	return Resolver{now: now}
}

// CanStart reports whether every incoming edge of id permits it to start.
func (r Resolver) CanStart(s Snapshot, id string) bool {
	return r.CheckStart(s, id) == nil
}

// CanFinish reports whether the start premise still holds at finish time: a predecessor
// reopened after id started invalidates its finish as well.
func (r Resolver) CanFinish(s Snapshot, id string) bool {
	return r.CheckFinish(s, id) == nil
}

// CheckStart returns a NotSatisfiedError naming every blocking predecessor.
func (r Resolver) CheckStart(s Snapshot, id string) error {
	return r.check(s, id)
}

// CheckFinish applies the same edge rules as CheckStart at finish time.
func (r Resolver) CheckFinish(s Snapshot, id string) error {
	return r.check(s, id)
}

func (r Resolver) check(s Snapshot, id string) error {
	now := r.now()
	var blockers []Blocker
	for _, edge := range s.Edges {
		if edge.DependentID != id {
			continue
		}
		if b, blocked := evaluate(edge, s.Nodes[edge.PredecessorID], now); blocked {
			blockers = append(blockers, b)
		}
	}
	if len(blockers) == 0 {
		return nil
	}
	return &NotSatisfiedError{InstanceID: id, Blockers: blockers}
}

func evaluate(edge Edge, pred Node, now time.Time) (Blocker, bool) {
	b := Blocker{PredecessorID: edge.PredecessorID, Type: edge.Type, LagDays: edge.LagDays}

	var anchor *time.Time
	switch edge.Type {
	case FinishToStart:
		anchor = pred.ActualEnd
		b.Reason = "predecessor not finished"
	case StartToStart:
		anchor = pred.ActualStart
		b.Reason = "predecessor not started"
	default:
		b.Reason = "unknown dependency type"
		return b, true
	}
	if anchor == nil {
		return b, true
	}

	ready := anchor.Add(edge.Lag())
	if ready.After(now) {
		b.Reason = "lag not elapsed"
		b.ReadyAt = ready
		return b, true
	}
	return Blocker{}, false
}
