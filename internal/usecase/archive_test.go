package usecase_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

func newArchiveFixture(t *testing.T) (*fixture, usecase.ArchiveService) {
	t.Helper()
	f := newFixture(t)
	svc := usecase.NewArchiveService(f.store, 6, 24)
	svc.Now = func() time.Time { return frozen }

	// One sale and one batch well past the 6 month retention window, plus
	// one recent sale that must survive.
	old := frozen.AddDate(0, -8, 0)
	f.store.Seed(func(tx domain.StoreTx) {
		ctx := t.Context()
		_, err := tx.Sales().Create(ctx, &domain.Sale{
			BranchID: f.branchID, CashierID: f.cashierID, TotalAmount: 12,
			PaymentMethod: domain.PayCash, SaleDate: old, ReceiptNumber: "R20250714000001",
		})
		require.NoError(t, err)
		_, err = tx.Sales().Create(ctx, &domain.Sale{
			BranchID: f.branchID, CashierID: f.cashierID, TotalAmount: 20,
			PaymentMethod: domain.PayCash, SaleDate: frozen.AddDate(0, 0, -1), ReceiptNumber: "R20260313000001",
		})
		require.NoError(t, err)
		_, err = tx.Batches().Create(ctx, &domain.Batch{
			BranchID: f.branchID, CreatorActorID: f.adminID, BatchDate: old,
			Status: domain.BatchSent, CreatedAt: old,
		})
		require.NoError(t, err)
	})
	return f, svc
}

func TestArchiveSettings_DefaultsMaterialized(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewArchiveService(f.store, 6, 24)

	settings, err := svc.Settings(t.Context(), f.branchID)
	require.NoError(t, err)
	assert.True(t, settings.Enabled)
	assert.Equal(t, 6, settings.RetentionMonths)
	assert.Equal(t, 24, settings.ColdStorageAfterMonths)
	assert.Equal(t, "archive all records older than 6 months", settings.ConfirmationPhrase)
}

func TestArchiveUpdateSettings_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewArchiveService(f.store, 6, 24)

	_, err := svc.UpdateSettings(t.Context(), adminGate(f), domain.RoleAdmin, domain.ArchiveSettings{
		BranchID: f.branchID, RetentionMonths: 0, ColdStorageAfterMonths: 24,
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidationFailed, domain.CodeOf(err))

	_, err = svc.UpdateSettings(t.Context(), adminGate(f), domain.RoleAdmin, domain.ArchiveSettings{
		BranchID: f.branchID, RetentionMonths: 12, ColdStorageAfterMonths: 6,
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidationFailed, domain.CodeOf(err))

	// A valid update with an empty phrase resets to the default sentence.
	_, err = svc.UpdateSettings(t.Context(), adminGate(f), domain.RoleAdmin, domain.ArchiveSettings{
		BranchID: f.branchID, Enabled: true, RetentionMonths: 12, ColdStorageAfterMonths: 24,
	})
	require.NoError(t, err)
	settings, err := svc.Settings(t.Context(), f.branchID)
	require.NoError(t, err)
	assert.Equal(t, "archive all records older than 12 months", settings.ConfirmationPhrase)
}

func TestArchiveRunManual(t *testing.T) {
	t.Parallel()
	f, svc := newArchiveFixture(t)

	t.Run("confirmation phrase must match exactly", func(t *testing.T) {
		_, err := svc.RunManual(t.Context(), adminGate(f), domain.RoleAdmin, f.branchID, "archive everything")
		require.Error(t, err)
		assert.Equal(t, domain.CodeArchiveConfirmation, domain.CodeOf(err))
	})

	t.Run("cashier may not run", func(t *testing.T) {
		_, err := svc.RunManual(t.Context(), usecase.Gate{ActorID: f.cashierID}, domain.RoleCashier, f.branchID,
			"archive all records older than 6 months")
		require.Error(t, err)
		assert.Equal(t, domain.CodeAuthForbidden, domain.CodeOf(err))
	})

	res, err := svc.RunManual(t.Context(), adminGate(f), domain.RoleAdmin, f.branchID,
		"archive all records older than 6 months")
	require.NoError(t, err)
	var run usecase.ArchiveRunView
	require.NoError(t, json.Unmarshal(res.Payload, &run))
	assert.Equal(t, string(domain.ArchiveSuccess), run.Status)
	assert.Equal(t, "manual", run.RunType)
	assert.EqualValues(t, 1, run.Details["sales"])
	assert.EqualValues(t, 1, run.Details["batches"])

	// The recent sale survives in the hot table.
	sales, err := usecase.NewSaleService(f.store).ListByBranch(t.Context(), f.branchID, 50, 0)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "R20260313000001", sales[0].ReceiptNumber)

	// Managers were told and the run is on record.
	notifs := f.notificationsFor(t, f.adminID)
	require.NotEmpty(t, notifs)
	assert.Equal(t, "archive_summary", notifs[len(notifs)-1].Type)

	runs, err := svc.Runs(t.Context(), f.branchID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	// A second run finds nothing left to move.
	res, err = svc.RunManual(t.Context(), adminGate(f), domain.RoleAdmin, f.branchID,
		"archive all records older than 6 months")
	require.NoError(t, err)
	var again usecase.ArchiveRunView
	require.NoError(t, json.Unmarshal(res.Payload, &again))
	assert.Equal(t, string(domain.ArchiveSuccess), again.Status)
	assert.EqualValues(t, 0, again.Details["sales"])
}

func TestArchiveRunManual_SkippedWhileLockHeld(t *testing.T) {
	t.Parallel()
	f, svc := newArchiveFixture(t)

	acquired, err := f.store.WithAdvisoryLock(t.Context(), domain.LockArchiveScheduler, func(ctx domain.Context) error {
		res, err := svc.RunManual(ctx, adminGate(f), domain.RoleAdmin, f.branchID,
			"archive all records older than 6 months")
		require.NoError(t, err)
		var run usecase.ArchiveRunView
		require.NoError(t, json.Unmarshal(res.Payload, &run))
		assert.Equal(t, string(domain.ArchiveSkipped), run.Status)
		return nil
	})
	require.NoError(t, err)
	require.True(t, acquired)

	// Nothing moved while skipped.
	sales, err := usecase.NewSaleService(f.store).ListByBranch(t.Context(), f.branchID, 50, 0)
	require.NoError(t, err)
	assert.Len(t, sales, 2)
}

func TestArchiveRunScheduled(t *testing.T) {
	t.Parallel()
	f, svc := newArchiveFixture(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, svc.RunScheduled(t.Context(), log))

	runs, err := svc.Runs(t.Context(), f.branchID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "scheduled", runs[0].RunType)
	assert.Nil(t, runs[0].TriggeredBy)

	// The first sweep also fires the twice-yearly reminder.
	var sawReminder bool
	for _, n := range f.notificationsFor(t, f.adminID) {
		if n.Type == "archive_reminder" {
			sawReminder = true
		}
	}
	assert.True(t, sawReminder)

	settings, err := svc.Settings(t.Context(), f.branchID)
	require.NoError(t, err)
	require.NotNil(t, settings.LastRunAt)
	require.NotNil(t, settings.LastReminderAt)
}

func TestArchiveRunScheduled_DisabledBranchStillReminded(t *testing.T) {
	t.Parallel()
	f, svc := newArchiveFixture(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := svc.UpdateSettings(t.Context(), adminGate(f), domain.RoleAdmin, domain.ArchiveSettings{
		BranchID: f.branchID, Enabled: false, RetentionMonths: 6, ColdStorageAfterMonths: 24,
	})
	require.NoError(t, err)

	require.NoError(t, svc.RunScheduled(t.Context(), log))

	// No run happened, but the reminder fired regardless of enabled.
	runs, err := svc.Runs(t.Context(), f.branchID, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	var sawReminder bool
	for _, n := range f.notificationsFor(t, f.adminID) {
		if n.Type == "archive_reminder" {
			sawReminder = true
		}
	}
	assert.True(t, sawReminder)
}
