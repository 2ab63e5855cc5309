package usecase_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

func saleInput(f *fixture, key string) usecase.CommitSaleInput {
	return usecase.CommitSaleInput{
		ActorID:  f.cashierID,
		Role:     domain.RoleCashier,
		BranchID: f.branchID,
		Items: []usecase.SaleLine{
			{ProductID: f.croissantID, Quantity: 5},
			{ProductID: f.loafID, Quantity: 2},
		},
		PaymentMethod:  domain.PayCash,
		IdempotencyKey: key,
		Endpoint:       "POST /v1/sales",
	}
}

func TestSaleCommit_HappyPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewSaleService(f.store)
	svc.Now = func() time.Time { return frozen }

	res, err := svc.Commit(t.Context(), saleInput(f, "key-1"))
	require.NoError(t, err)
	require.False(t, res.Replayed)

	var receipt usecase.SaleReceipt
	require.NoError(t, json.Unmarshal(res.Payload, &receipt))
	assert.Equal(t, "R20260314000001", receipt.ReceiptNumber)
	assert.InDelta(t, 37.50, receipt.TotalAmount, 0.001)
	require.Len(t, receipt.Items, 2)
	assert.InDelta(t, 12.50, receipt.Items[0].Subtotal, 0.001)
	assert.InDelta(t, 25.00, receipt.Items[1].Subtotal, 0.001)

	assert.Equal(t, int64(5), f.stock(t, f.croissantID))
	assert.Equal(t, int64(8), f.stock(t, f.loafID))

	movements, err := usecase.NewInventoryService(f.store).MovementsFor(t.Context(), "sale", receipt.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	for _, mv := range movements {
		assert.Equal(t, domain.MovementSaleOut, mv.MovementType)
		assert.Negative(t, mv.QuantityChange)
	}
}

func TestSaleCommit_ReceiptSequencePerDay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewSaleService(f.store)
	svc.Now = func() time.Time { return frozen }

	first, err := svc.Commit(t.Context(), saleInput(f, "key-a"))
	require.NoError(t, err)
	second, err := svc.Commit(t.Context(), saleInput(f, "key-b"))
	require.NoError(t, err)

	var r1, r2 usecase.SaleReceipt
	require.NoError(t, json.Unmarshal(first.Payload, &r1))
	require.NoError(t, json.Unmarshal(second.Payload, &r2))
	assert.Equal(t, "R20260314000001", r1.ReceiptNumber)
	assert.Equal(t, "R20260314000002", r2.ReceiptNumber)
}

func TestSaleCommit_IdempotentReplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewSaleService(f.store)
	svc.Now = func() time.Time { return frozen }

	first, err := svc.Commit(t.Context(), saleInput(f, "key-1"))
	require.NoError(t, err)
	replay, err := svc.Commit(t.Context(), saleInput(f, "key-1"))
	require.NoError(t, err)

	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Payload, replay.Payload)

	// The replay must not execute: stock deducted once, one sale row.
	assert.Equal(t, int64(5), f.stock(t, f.croissantID))
	sales, err := svc.ListByBranch(t.Context(), f.branchID, 50, 0)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestSaleCommit_EndpointMismatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewSaleService(f.store)
	svc.Now = func() time.Time { return frozen }

	_, err := svc.Commit(t.Context(), saleInput(f, "key-1"))
	require.NoError(t, err)

	in := saleInput(f, "key-1")
	in.Endpoint = "POST /v1/batches"
	_, err = svc.Commit(t.Context(), in)
	require.Error(t, err)
	assert.Equal(t, domain.CodeIdemEndpointMism, domain.CodeOf(err))
}

func TestSaleCommit_InsufficientStock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewSaleService(f.store)
	svc.Now = func() time.Time { return frozen }

	in := saleInput(f, "key-1")
	in.Items = []usecase.SaleLine{{ProductID: f.croissantID, Quantity: 100}}
	_, err := svc.Commit(t.Context(), in)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInsufficientStock, domain.CodeOf(err))
	details := domain.DetailsOf(err)
	require.NotNil(t, details)
	assert.Equal(t, f.croissantID, details["product_id"])
	assert.Equal(t, int64(10), details["current"])
	assert.Equal(t, int64(100), details["requested"])

	// Nothing committed, and the failed attempt must not consume the key.
	assert.Equal(t, int64(10), f.stock(t, f.croissantID))
	res, err := svc.Commit(t.Context(), saleInput(f, "key-1"))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestSaleCommit_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewSaleService(f.store)
	svc.Now = func() time.Time { return frozen }

	tests := []struct {
		name   string
		mutate func(*usecase.CommitSaleInput)
		code   string
	}{
		{"no items", func(in *usecase.CommitSaleInput) { in.Items = nil }, domain.CodeValidationFailed},
		{"zero quantity", func(in *usecase.CommitSaleInput) { in.Items[0].Quantity = 0 }, domain.CodeValidationFailed},
		{"bad payment method", func(in *usecase.CommitSaleInput) { in.PaymentMethod = "barter" }, domain.CodeValidationFailed},
		{"unknown role", func(in *usecase.CommitSaleInput) { in.Role = "viewer" }, domain.CodeAuthForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := saleInput(f, "")
			tc.mutate(&in)
			_, err := svc.Commit(t.Context(), in)
			require.Error(t, err)
			assert.Equal(t, tc.code, domain.CodeOf(err))
		})
	}
}

func TestSaleCommit_InactiveProduct(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewSaleService(f.store)
	svc.Now = func() time.Time { return frozen }

	_, err := usecase.NewCatalogService(f.store).SetProductActive(
		t.Context(), usecase.Gate{ActorID: f.adminID}, domain.RoleAdmin, f.loafID, false)
	require.NoError(t, err)

	_, err = svc.Commit(t.Context(), saleInput(f, ""))
	require.Error(t, err)
	assert.Equal(t, domain.CodeProductUnavailable, domain.CodeOf(err))
}

func TestSaleCommit_KPIEventsAndHighSaleAlert(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewSaleService(f.store)
	svc.Now = func() time.Time { return frozen }

	_, err := usecase.NewNotifyService(f.store).CreateRule(t.Context(), usecase.Gate{ActorID: f.adminID}, &domain.AlertRule{
		BranchID: &f.branchID, EventType: domain.EventHighSale, Threshold: 30, Enabled: true,
	})
	require.NoError(t, err)

	timing := int64(4200)
	in := saleInput(f, "")
	in.CashierTimingMS = &timing
	_, err = svc.Commit(t.Context(), in)
	require.NoError(t, err)

	// 37.50 crosses the 30.00 threshold; branch admin and manager get told.
	notifs := f.notificationsFor(t, f.adminID)
	require.Len(t, notifs, 1)
	assert.Equal(t, domain.EventHighSale, notifs[0].Type)
}

func TestSaleVoid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewSaleService(f.store)
	svc.Now = func() time.Time { return frozen }

	res, err := svc.Commit(t.Context(), saleInput(f, ""))
	require.NoError(t, err)
	var receipt usecase.SaleReceipt
	require.NoError(t, json.Unmarshal(res.Payload, &receipt))
	require.Equal(t, int64(5), f.stock(t, f.croissantID))

	// Only the cashier of record or an admin may void.
	_, err = svc.Void(t.Context(), usecase.Gate{ActorID: f.cashierID + 1000}, domain.RoleCashier, receipt.ID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeAuthForbidden, domain.CodeOf(err))

	_, err = svc.Void(t.Context(), usecase.Gate{ActorID: f.cashierID}, domain.RoleCashier, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.stock(t, f.croissantID))
	assert.Equal(t, int64(10), f.stock(t, f.loafID))

	_, err = svc.Void(t.Context(), usecase.Gate{ActorID: f.cashierID}, domain.RoleCashier, receipt.ID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
}

func TestRound2(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 37.50, usecase.Round2(37.499999999))
	assert.Equal(t, 0.13, usecase.Round2(0.125))
	assert.Equal(t, -2.5, usecase.Round2(-2.504))
}
