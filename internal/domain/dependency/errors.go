package dependency

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrDependencyNotSatisfied indicates a predecessor does not yet permit the transition.
	ErrDependencyNotSatisfied = errors.New("dependency not satisfied")
	// ErrCyclicDependency indicates an edge would close a cycle.
	ErrCyclicDependency = errors.New("cyclic dependency")
)

// Blocker names one unsatisfied incoming edge.
type Blocker struct {
	PredecessorID string    `json:"predecessor_id"`
	Type          Type      `json:"type"`
	LagDays       int       `json:"lag_days"`
	Reason        string    `json:"reason"`
	ReadyAt       time.Time `json:"ready_at,omitempty"`
}

// NotSatisfiedError lists every blocking predecessor of an instance.
type NotSatisfiedError struct {
	InstanceID string
	Blockers   []Blocker
}

func (e *NotSatisfiedError) Error() string {
	ids := make([]string, 0, len(e.Blockers))
	for _, b := range e.Blockers {
		ids = append(ids, fmt.Sprintf("%s (%s)", b.PredecessorID, b.Reason))
	}
	return fmt.Sprintf("dependency not satisfied for %s: blocked by %s", e.InstanceID, strings.Join(ids, ", "))
}

// Is matches ErrDependencyNotSatisfied.
func (e *NotSatisfiedError) Is(target error) bool {
	return target == ErrDependencyNotSatisfied
}

// CycleError reports the path that the rejected edge would have closed.
type CycleError struct {
	PredecessorID string
	DependentID   string
	Path          []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s -> %s closes cycle %s", e.PredecessorID, e.DependentID, strings.Join(e.Path, " -> "))
}

// Is matches ErrCyclicDependency.
func (e *CycleError) Is(target error) bool {
	return target == ErrCyclicDependency
}
