package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/fabtrack/internal/domain/activity"
	"github.com/rpggio/fabtrack/internal/domain/catalog"
	"github.com/rpggio/fabtrack/internal/domain/dependency"
	"github.com/rpggio/fabtrack/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestActivityRepository_SequenceUniquePerUnit(t *testing.T) {
	db := NewTestDB(t)
	seedUnit(t, db, "u1", "BOX-1")
	seedUnit(t, db, "u2", "BOX-2")
	def := seedDefinition(t, db, "FRAME")
	seedActivity(t, db, "a1", "u1", def.ID, 10)
	seedActivity(t, db, "a3", "u2", def.ID, 10)

	dup := &activity.Instance{
		ID: "a2", UnitID: "u1", DefinitionID: def.ID, Sequence: 10,
		Status: activity.StatusPending, CreatedAt: testNow, UpdatedAt: testNow,
	}
	require.ErrorIs(t, NewActivityRepository(db).Create(context.Background(), dup), repository.ErrDuplicate)
}

func TestActivityRepository_UpdateRoundTrip(t *testing.T) {
	db := NewTestDB(t)
	repo := NewActivityRepository(db)
	ctx := context.Background()
	seedUnit(t, db, "u1", "BOX-1")
	def := seedDefinition(t, db, "FRAME")
	in := seedActivity(t, db, "a1", "u1", def.ID, 10)

	start := testNow.Add(time.Hour)
	in.Status = activity.StatusInProgress
	in.ActualStart = &start
	in.Progress = decimal.RequireFromString("37.5")
	in.AssignedTeam = "crew-b"
	require.NoError(t, repo.Update(ctx, in, 0))

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, activity.StatusInProgress, got.Status)
	require.Equal(t, start, *got.ActualStart)
	require.Nil(t, got.ActualEnd)
	require.True(t, got.Progress.Equal(decimal.RequireFromString("37.5")))
	require.Equal(t, int64(1), got.Version)

	require.ErrorIs(t, repo.Update(ctx, in, 0), repository.ErrConflict)

	list, err := repo.ListByUnit(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestDefinitionRepository_RejectsRedefinition(t *testing.T) {
	db := NewTestDB(t)
	repo := NewDefinitionRepository(db)
	ctx := context.Background()
	d := seedDefinition(t, db, "FRAME")

	got, err := repo.Get(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, d.SameContent(*got))
	require.ErrorIs(t, repo.Create(ctx, d), repository.ErrDuplicate)

	section := catalog.Section{Code: "STR", Title: "Structure", Items: []catalog.PredefinedItem{
		{Code: "STR-1", Description: "Square"},
		{Code: "STR-2", Description: "Torqued"},
	}}
	require.NoError(t, repo.CreateSection(ctx, "1", section))
	require.NoError(t, repo.CreateSection(ctx, "1", section))
	sections, err := repo.ListSections(ctx, "1")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	require.Len(t, sections[0].Items, 2)
}

func TestDependencyRepository(t *testing.T) {
	db := NewTestDB(t)
	repo := NewDependencyRepository(db)
	ctx := context.Background()
	seedUnit(t, db, "u1", "BOX-1")
	def := seedDefinition(t, db, "FRAME")
	seedActivity(t, db, "a1", "u1", def.ID, 10)
	seedActivity(t, db, "a2", "u1", def.ID, 20)

	e := dependency.Edge{ID: "e1", UnitID: "u1", PredecessorID: "a1", DependentID: "a2", Type: dependency.FinishToStart, LagDays: 2, CreatedAt: testNow}
	require.NoError(t, repo.Create(ctx, e))
	require.ErrorIs(t, repo.Create(ctx, dependency.Edge{ID: "e2", UnitID: "u1", PredecessorID: "a1", DependentID: "a2", Type: dependency.StartToStart, CreatedAt: testNow}), repository.ErrDuplicate)

	edges, err := repo.ListByUnit(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []dependency.Edge{e}, edges)

	require.NoError(t, repo.Delete(ctx, "e1"))
	require.ErrorIs(t, repo.Delete(ctx, "e1"), repository.ErrNotFound)
}
