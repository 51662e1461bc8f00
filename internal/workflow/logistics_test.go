package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/fabtrack/internal/domain"
	"github.com/rpggio/fabtrack/internal/domain/logistics"
	"github.com/rpggio/fabtrack/internal/repository"
	"github.com/stretchr/testify/require"
)

func registerPanel(t *testing.T, env *testEnv, barcode string) *logistics.Panel {
	t.Helper()
	ctx := context.Background()
	u, err := env.engine.GetUnitByTag(ctx, "U-1")
	if err != nil {
		u, _, _ = createPod(t, env, "U-1")
	}
	p, err := env.engine.RegisterPanel(ctx, admin, RegisterPanelRequest{Barcode: barcode, UnitID: u.ID, PanelType: "wall"})
	require.NoError(t, err)
	return p
}

func approve(t *testing.T, env *testEnv, panelID string, stage int) *logistics.Panel {
	t.Helper()
	p, err := env.engine.DecideApproval(context.Background(), admin, DecideApprovalRequest{
		PanelID:  panelID,
		Stage:    stage,
		Decision: string(logistics.DecisionApproved),
	})
	require.NoError(t, err)
	return p
}

func TestInstallRequiresBothApprovals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := registerPanel(t, env, "P-100")

	_, err := env.engine.AdvanceLocation(ctx, admin, p.ID, string(logistics.Delivered), "")
	require.NoError(t, err)
	approve(t, env, p.ID, 1)

	_, err = env.engine.AdvanceLocation(ctx, admin, p.ID, string(logistics.Installed), "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.ErrorIs(t, err, logistics.ErrApprovalsIncomplete)

	approve(t, env, p.ID, 2)
	installed, err := env.engine.AdvanceLocation(ctx, admin, p.ID, string(logistics.Installed), "")
	require.NoError(t, err)
	require.Equal(t, logistics.Installed, installed.Location)

	_, err = env.engine.AdvanceLocation(ctx, admin, p.ID, string(logistics.Delivered), "")
	require.ErrorIs(t, err, logistics.ErrLocationRegression)
}

func TestApprovalStagesAreSequential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := registerPanel(t, env, "P-100")

	_, err := env.engine.DecideApproval(ctx, admin, DecideApprovalRequest{PanelID: p.ID, Stage: 2, Decision: "Approved"})
	require.ErrorIs(t, err, logistics.ErrFirstStageRequired)

	_, err = env.engine.DecideApproval(ctx, admin, DecideApprovalRequest{PanelID: p.ID, Stage: 3, Decision: "Approved"})
	require.ErrorIs(t, err, domain.ErrValidation)

	rejected, err := env.engine.DecideApproval(ctx, admin, DecideApprovalRequest{PanelID: p.ID, Stage: 1, Decision: "Rejected", Notes: "chipped edge"})
	require.NoError(t, err)
	require.True(t, rejected.Rejected())

	_, err = env.engine.DecideApproval(ctx, admin, DecideApprovalRequest{PanelID: p.ID, Stage: 1, Decision: "Approved"})
	require.ErrorIs(t, err, logistics.ErrResubmissionRequired)

	resubmitted, err := env.engine.ResubmitPanel(ctx, admin, p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, resubmitted.ResubmissionCount)
	require.Equal(t, logistics.DecisionPending, resubmitted.First.Decision)

	approved := approve(t, env, p.ID, 1)
	require.Equal(t, "admin", approved.First.ApproverID)
}

func TestRecordScanDeduplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := registerPanel(t, env, "P-100")
	clientTime := time.Date(2026, 5, 4, 7, 29, 10, 100_000_000, time.UTC)

	first, err := env.engine.RecordScan(ctx, admin, RecordScanRequest{
		Barcode: "P-100", ScanType: "dispatch", Location: "yard", ClientTime: clientTime,
	})
	require.NoError(t, err)
	require.False(t, first.Duplicate)
	require.Equal(t, logistics.Dispatched, first.Panel.Location)

	env.clock.Advance(time.Minute)
	again, err := env.engine.RecordScan(ctx, admin, RecordScanRequest{
		Barcode: "P-100", ScanType: "dispatch", Location: "yard", ClientTime: clientTime.Add(700 * time.Millisecond),
	})
	require.NoError(t, err)
	require.True(t, again.Duplicate)
	require.Equal(t, first.Scan.ID, again.Scan.ID)

	view, err := env.engine.GetPanel(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, view.Scans, 1)

	env.clock.Advance(11 * time.Minute)
	late, err := env.engine.RecordScan(ctx, admin, RecordScanRequest{
		Barcode: "P-100", ScanType: "dispatch", Location: "yard", ClientTime: clientTime,
	})
	require.NoError(t, err)
	require.False(t, late.Duplicate)
	require.Nil(t, late.Anomaly)
	require.True(t, late.Scan.ServerTime.After(first.Scan.ServerTime))
}

func TestOutOfOrderScanIsHeldUntilConfirmed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := registerPanel(t, env, "P-100")

	res, err := env.engine.RecordScan(ctx, admin, RecordScanRequest{
		Barcode: "P-100", ScanType: "delivery", Location: "site", ClientTime: env.clock.Now(),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Anomaly)
	require.Equal(t, logistics.AnomalyOutOfOrder, res.Anomaly.Kind)
	require.Equal(t, logistics.AtFactory, res.Panel.Location)
	require.Equal(t, "site", res.Panel.LastSeenAt)

	confirmed, err := env.engine.ConfirmAnomaly(ctx, admin, res.Anomaly.ID, "truck skipped the depot")
	require.NoError(t, err)
	require.Equal(t, logistics.AnomalyConfirmed, confirmed.Status)

	view, err := env.engine.GetPanel(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, logistics.Delivered, view.Panel.Location)

	_, err = env.engine.ConfirmAnomaly(ctx, admin, res.Anomaly.ID, "")
	require.ErrorIs(t, err, logistics.ErrAnomalyClosed)
}

func TestRegressionScanCanBeDismissed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := registerPanel(t, env, "P-100")
	_, err := env.engine.AdvanceLocation(ctx, admin, p.ID, string(logistics.InTransit), "")
	require.NoError(t, err)

	res, err := env.engine.RecordScan(ctx, admin, RecordScanRequest{
		Barcode: "P-100", ScanType: "dispatch", Location: "yard", ClientTime: env.clock.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, logistics.AnomalyRegression, res.Anomaly.Kind)

	_, err = env.engine.DismissAnomaly(ctx, admin, res.Anomaly.ID, "")
	require.ErrorIs(t, err, domain.ErrValidation)
	dismissed, err := env.engine.DismissAnomaly(ctx, admin, res.Anomaly.ID, "stale device queue")
	require.NoError(t, err)
	require.Equal(t, logistics.AnomalyDismissed, dismissed.Status)

	open, err := env.engine.ListAnomalies(ctx, repository.ListAnomaliesOptions{Status: logistics.AnomalyOpen})
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestUnknownBarcodeIsReconciledOnRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.engine.RecordScan(ctx, admin, RecordScanRequest{
		Barcode: "P-200", ScanType: "dispatch", Location: "yard", ClientTime: env.clock.Now(),
	})
	require.NoError(t, err)
	require.True(t, res.Scan.Unresolved)
	require.Nil(t, res.Panel)
	require.Equal(t, logistics.AnomalyUnresolvedBarcode, res.Anomaly.Kind)

	_, err = env.engine.ConfirmAnomaly(ctx, admin, res.Anomaly.ID, "")
	require.ErrorIs(t, err, logistics.ErrRegistrationRequired)

	env.clock.Advance(time.Minute)
	p := registerPanel(t, env, "P-200")
	require.Equal(t, "yard", p.LastSeenAt)
	require.Equal(t, logistics.AtFactory, p.Location)

	view, err := env.engine.GetPanel(ctx, "P-200")
	require.NoError(t, err)
	require.Len(t, view.Scans, 1)
	require.Equal(t, res.Scan.ID, view.Scans[0].ID)

	anomalies, err := env.engine.ListAnomalies(ctx, repository.ListAnomaliesOptions{Barcode: "P-200"})
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	require.Equal(t, logistics.AnomalyReconciled, anomalies[0].Status)
}

func TestCreateManifest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := registerPanel(t, env, "P-1")
	b := registerPanel(t, env, "P-2")
	date := time.Date(2026, 5, 6, 0, 0, 0, 0, time.UTC)

	m, err := env.engine.CreateManifest(ctx, admin, CreateManifestRequest{
		Carrier: "Northline", Vehicle: "TRK-7", DeliveryDate: date, Barcodes: []string{"P-1", "P-2", "P-1"},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a.ID, b.ID}, m.PanelIDs)

	stored, err := env.engine.GetManifest(ctx, m.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a.ID, b.ID}, stored.PanelIDs)

	_, err = env.engine.CreateManifest(ctx, admin, CreateManifestRequest{Carrier: "Northline", DeliveryDate: date, Barcodes: []string{"P-1"}})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.engine.CreateManifest(ctx, admin, CreateManifestRequest{Carrier: "Northline", DeliveryDate: date, Barcodes: []string{"P-9"}})
	require.ErrorIs(t, err, domain.ErrUnresolvedReference)
}
