package dependency_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/stretchr/testify/require"
)

func TestResolver_FinishToStart(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := dependency.NewResolver(func() time.Time { return now })

	snap := dependency.Snapshot{
		Nodes: map[string]dependency.Node{"a1": {ID: "a1"}, "a2": {ID: "a2"}},
		Edges: []dependency.Edge{{ID: "e1", PredecessorID: "a1", DependentID: "a2", Type: dependency.FinishToStart}},
	}
	require.True(t, r.CanStart(snap, "a1"))
	require.False(t, r.CanStart(snap, "a2"))

	err := r.CheckStart(snap, "a2")
	require.ErrorIs(t, err, dependency.ErrDependencyNotSatisfied)
	var ns *dependency.NotSatisfiedError
	require.ErrorAs(t, err, &ns)
	require.Equal(t, "a1", ns.Blockers[0].PredecessorID)

	end := now.Add(-time.Hour)
	snap.Nodes["a1"] = dependency.Node{ID: "a1", ActualEnd: &end}
	require.True(t, r.CanStart(snap, "a2"))
}

func TestResolver_LagDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := dependency.NewResolver(func() time.Time { return now })

	start := now.Add(-36 * time.Hour)
	snap := dependency.Snapshot{
		Nodes: map[string]dependency.Node{"a1": {ID: "a1", ActualStart: &start}},
		Edges: []dependency.Edge{{PredecessorID: "a1", DependentID: "a2", Type: dependency.StartToStart, LagDays: 2}},
	}
	err := r.CheckStart(snap, "a2")
	var ns *dependency.NotSatisfiedError
	require.ErrorAs(t, err, &ns)
	require.Equal(t, "lag not elapsed", ns.Blockers[0].Reason)
	require.Equal(t, start.Add(48*time.Hour), ns.Blockers[0].ReadyAt)

	snap.Edges[0].LagDays = 1
	require.True(t, r.CanStart(snap, "a2"))
	require.True(t, r.CanFinish(snap, "a2"))
}

func TestResolver_ConcurrentUse(t *testing.T) {
	r := dependency.NewResolver(nil)
	end := time.Now().Add(-time.Minute)
	snap := dependency.Snapshot{
		Nodes: map[string]dependency.Node{"a1": {ID: "a1", ActualEnd: &end}},
		Edges: []dependency.Edge{{PredecessorID: "a1", DependentID: "a2", Type: dependency.FinishToStart}},
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.True(t, r.CanStart(snap, "a2"))
		}()
	}
	wg.Wait()
}
