package usecase_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

func TestInventorySetLevel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewInventoryService(f.store)

	res, err := svc.SetLevel(t.Context(), usecase.Gate{ActorID: f.adminID}, domain.RoleAdmin,
		f.branchID, f.croissantID, 25, "", "recount")
	require.NoError(t, err)
	var out struct {
		Quantity int64 `json:"quantity"`
	}
	require.NoError(t, json.Unmarshal(res.Payload, &out))
	assert.Equal(t, int64(25), out.Quantity)
	assert.Equal(t, int64(25), f.stock(t, f.croissantID))

	movements, err := svc.MovementsFor(t.Context(), "manual", 0)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, domain.MovementManualAdjustment, movements[0].MovementType)
	assert.Equal(t, int64(15), movements[0].QuantityChange)
	assert.Equal(t, "recount", movements[0].Metadata["note"])
}

func TestInventorySetLevel_NoopOnEqualTarget(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewInventoryService(f.store)

	_, err := svc.SetLevel(t.Context(), usecase.Gate{ActorID: f.adminID}, domain.RoleAdmin,
		f.branchID, f.croissantID, 10, "", "")
	require.NoError(t, err)

	movements, err := svc.MovementsFor(t.Context(), "manual", 0)
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestInventorySetLevel_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewInventoryService(f.store)

	_, err := svc.SetLevel(t.Context(), usecase.Gate{ActorID: f.adminID}, domain.RoleAdmin,
		f.branchID, f.croissantID, -1, "", "")
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidationFailed, domain.CodeOf(err))

	_, err = svc.SetLevel(t.Context(), usecase.Gate{ActorID: f.cashierID}, domain.RoleCashier,
		f.branchID, f.croissantID, 5, "", "")
	require.Error(t, err)
	assert.Equal(t, domain.CodeAuthForbidden, domain.CodeOf(err))
}

func TestInventorySetLevel_IdempotentReplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewInventoryService(f.store)

	g := usecase.Gate{ActorID: f.adminID, Key: "adjust-1", Endpoint: "PUT /v1/inventory/{product_id}"}
	first, err := svc.SetLevel(t.Context(), g, domain.RoleAdmin, f.branchID, f.croissantID, 25, "", "recount")
	require.NoError(t, err)
	require.False(t, first.Replayed)

	// The replayed call must not move stock again.
	replay, err := svc.SetLevel(t.Context(), g, domain.RoleAdmin, f.branchID, f.croissantID, 40, "", "recount")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Payload, replay.Payload)
	assert.Equal(t, int64(25), f.stock(t, f.croissantID))
}

func TestInventoryClear_FiresLowStockAlert(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewInventoryService(f.store)

	_, err := usecase.NewNotifyService(f.store).CreateRule(t.Context(), usecase.Gate{ActorID: f.adminID}, &domain.AlertRule{
		EventType: domain.EventLowStock, Threshold: 3, Enabled: true,
	})
	require.NoError(t, err)

	_, err = svc.Clear(t.Context(), usecase.Gate{ActorID: f.adminID}, domain.RoleAdmin,
		f.branchID, f.croissantID, "spoilage")
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.stock(t, f.croissantID))

	notifs := f.notificationsFor(t, f.adminID)
	require.Len(t, notifs, 1)
	assert.Equal(t, domain.EventLowStock, notifs[0].Type)
}
