package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/fabtrack/internal/domain/logistics"
	"github.com/rpggio/fabtrack/internal/repository"
	"github.com/stretchr/testify/require"
)

func seedPanel(t *testing.T, db *DB, id, barcode, unitID string) *logistics.Panel {
	t.Helper()
	p := &logistics.Panel{
		ID:        id,
		Barcode:   barcode,
		UnitID:    unitID,
		PanelType: "wall",
		Location:  logistics.AtFactory,
		First:     logistics.Approval{Decision: logistics.DecisionPending},
		Second:    logistics.Approval{Decision: logistics.DecisionPending},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, NewPanelRepository(db).Create(context.Background(), p))
	return p
}

func scanEvent(id, barcode, panelID string, at time.Time) *logistics.ScanEvent {
	return &logistics.ScanEvent{
		ID:         id,
		Barcode:    barcode,
		PanelID:    panelID,
		ScanType:   logistics.ScanDispatch,
		Location:   "Gate 2",
		Geo:        &logistics.GeoPoint{Latitude: 51.5, Longitude: -0.12},
		ActorID:    "scanner-7",
		ClientTime: at,
		ServerTime: at,
		DedupKey:   logistics.DedupKey(barcode, logistics.ScanDispatch, at),
		Unresolved: panelID == "",
	}
}

func TestPanelRepository_ApprovalsRoundTrip(t *testing.T) {
	db := NewTestDB(t)
	repo := NewPanelRepository(db)
	ctx := context.Background()
	seedUnit(t, db, "u1", "BOX-1")
	p := seedPanel(t, db, "p1", "PNL-1", "u1")

	decided := testNow.Add(time.Minute)
	p.First = logistics.Approval{Decision: logistics.DecisionApproved, ApproverID: "qa", DecidedAt: &decided, Notes: "ok"}
	require.NoError(t, repo.Update(ctx, p, 0))

	got, err := repo.GetByBarcode(ctx, "PNL-1")
	require.NoError(t, err)
	require.Equal(t, logistics.DecisionApproved, got.First.Decision)
	require.Equal(t, decided, *got.First.DecidedAt)
	require.Equal(t, logistics.DecisionPending, got.Second.Decision)
	require.Nil(t, got.Second.DecidedAt)
	require.Empty(t, got.ManifestID)

	dup := *p
	dup.ID = "p2"
	require.ErrorIs(t, repo.Create(ctx, &dup), repository.ErrDuplicate)
}

func TestScanRepository_Immutable(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, NewScanRepository(db).Create(ctx, scanEvent("s1", "PNL-X", "", testNow)))

	_, err := db.ExecContext(ctx, `UPDATE scan_events SET location = 'elsewhere' WHERE id = 's1'`)
	require.ErrorContains(t, err, "immutable")
	_, err = db.ExecContext(ctx, `DELETE FROM scan_events WHERE id = 's1'`)
	require.ErrorContains(t, err, "immutable")
}

func TestScanRepository_FindRecentWindow(t *testing.T) {
	db := NewTestDB(t)
	repo := NewScanRepository(db)
	ctx := context.Background()
	s := scanEvent("s1", "PNL-X", "", testNow.Add(250*time.Millisecond))
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.FindRecent(ctx, s.DedupKey, testNow.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, "s1", got.ID)
	require.True(t, got.Unresolved)
	require.InDelta(t, 51.5, got.Geo.Latitude, 1e-9)

	_, err = repo.FindRecent(ctx, s.DedupKey, testNow.Add(time.Second))
	require.ErrorIs(t, err, repository.ErrNotFound)

	last, err := repo.LastServerTime(ctx, "PNL-X")
	require.NoError(t, err)
	require.Equal(t, s.ServerTime, last)

	none, err := repo.LastServerTime(ctx, "PNL-NONE")
	require.NoError(t, err)
	require.True(t, none.IsZero())
}

func TestScanRepository_LinkReconciles(t *testing.T) {
	db := NewTestDB(t)
	repo := NewScanRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, scanEvent("s1", "PNL-1", "", testNow)))
	require.NoError(t, repo.Create(ctx, scanEvent("s2", "PNL-1", "", testNow.Add(time.Second))))

	unresolved, err := repo.ListUnresolved(ctx, "PNL-1")
	require.NoError(t, err)
	require.Len(t, unresolved, 2)

	seedUnit(t, db, "u1", "BOX-1")
	seedPanel(t, db, "p1", "PNL-1", "u1")
	require.NoError(t, repo.Link(ctx, "s1", "p1", testNow))
	require.NoError(t, repo.Create(ctx, scanEvent("s3", "PNL-1", "p1", testNow.Add(2*time.Second))))

	unresolved, err = repo.ListUnresolved(ctx, "PNL-1")
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	require.Equal(t, "s2", unresolved[0].ID)

	history, err := repo.ListByPanel(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "s1", history[0].ID)
	require.Equal(t, "s3", history[1].ID)
	require.True(t, history[0].Unresolved, "reconciled scans keep their original flag")
}

func TestAnomalyAndManifestRepositories(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	seedUnit(t, db, "u1", "BOX-1")
	p := seedPanel(t, db, "p1", "PNL-1", "u1")
	require.NoError(t, NewScanRepository(db).Create(ctx, scanEvent("s1", "PNL-1", "p1", testNow)))

	anomalies := NewAnomalyRepository(db)
	a := logistics.NewAnomaly("an1", logistics.ScanEvent{ID: "s1", Barcode: "PNL-1"}, p, logistics.AnomalyOutOfOrder, logistics.Installed, testNow)
	require.NoError(t, anomalies.Create(ctx, &a))

	open, err := anomalies.List(ctx, repository.ListAnomaliesOptions{Status: logistics.AnomalyOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, logistics.AtFactory, open[0].From)

	closed, err := logistics.Close(a, logistics.AnomalyDismissed, "op", "", testNow)
	require.NoError(t, err)
	require.NoError(t, anomalies.Update(ctx, &closed, 0))
	require.ErrorIs(t, anomalies.Update(ctx, &closed, 0), repository.ErrConflict)

	manifests := NewManifestRepository(db)
	m := &logistics.Manifest{ID: "m1", Carrier: "Haulage Co", Vehicle: "TRK-9", DeliveryDate: testNow, CreatedBy: "op", CreatedAt: testNow}
	require.NoError(t, manifests.Create(ctx, m))
	p.ManifestID = "m1"
	require.NoError(t, NewPanelRepository(db).Update(ctx, p, 0))

	got, err := manifests.Get(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, got.PanelIDs)
}
