package usecase_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/breadworks/bakeops/internal/adapter/repo/memory"
	"github.com/breadworks/bakeops/internal/domain"
)

// frozen is the reference clock for deterministic receipts and windows.
var frozen = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store

	branchID    int64
	adminID     int64
	cashierID   int64
	croissantID int64
	loafID      int64
}

// newFixture seeds one branch, an admin, a cashier and two stocked
// products (10 croissants at 2.50, 10 loaves at 12.50).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore()}
	f.store.Now = func() time.Time { return frozen }

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pw"), bcrypt.MinCost)
	require.NoError(t, err)

	f.store.Seed(func(tx domain.StoreTx) {
		ctx := t.Context()
		branch := domain.Branch{Name: "Main Street"}
		f.branchID, err = tx.Branches().Create(ctx, &branch)
		require.NoError(t, err)

		admin := domain.Actor{
			Username: "ops-admin", Email: "admin@example.test",
			PasswordHash: string(hash), Role: domain.RoleAdmin, BranchID: &f.branchID,
		}
		f.adminID, err = tx.Actors().Create(ctx, &admin)
		require.NoError(t, err)

		cashier := domain.Actor{
			Username: "till-1", Email: "till1@example.test",
			PasswordHash: string(hash), Role: domain.RoleCashier, BranchID: &f.branchID,
		}
		f.cashierID, err = tx.Actors().Create(ctx, &cashier)
		require.NoError(t, err)

		croissant := domain.Product{Name: "Croissant", Price: 2.50, Unit: "piece"}
		f.croissantID, err = tx.Products().Create(ctx, &croissant)
		require.NoError(t, err)
		loaf := domain.Product{Name: "Sourdough Loaf", Price: 12.50, Unit: "piece"}
		f.loafID, err = tx.Products().Create(ctx, &loaf)
		require.NoError(t, err)

		_, err = tx.Inventory().ApplyMovements(ctx, []domain.Movement{
			{BranchID: f.branchID, ProductID: f.croissantID, MovementType: domain.MovementBatchIn,
				QuantityChange: 10, Source: domain.SourceBaked, ReferenceType: "batch", ActorID: f.adminID},
			{BranchID: f.branchID, ProductID: f.loafID, MovementType: domain.MovementBatchIn,
				QuantityChange: 10, Source: domain.SourceBaked, ReferenceType: "batch", ActorID: f.adminID},
		})
		require.NoError(t, err)
	})
	return f
}

// stock reads the current quantity for a pair, zero when no row exists.
func (f *fixture) stock(t *testing.T, productID int64) int64 {
	t.Helper()
	var qty int64
	f.store.Dump(func(tx domain.StoreTx) {
		lvl, ok, err := tx.Inventory().Stock(t.Context(), f.branchID, productID)
		require.NoError(t, err)
		if ok {
			qty = lvl.Quantity
		}
	})
	return qty
}

// notificationsFor lists notifications delivered to one actor.
func (f *fixture) notificationsFor(t *testing.T, actorID int64) []domain.Notification {
	t.Helper()
	var out []domain.Notification
	f.store.Dump(func(tx domain.StoreTx) {
		var err error
		out, err = tx.Notifications().ListByRecipient(t.Context(), actorID, false, 100)
		require.NoError(t, err)
	})
	return out
}
