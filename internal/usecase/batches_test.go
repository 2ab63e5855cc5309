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

func batchInput(f *fixture) usecase.CreateBatchInput {
	return usecase.CreateBatchInput{
		ActorID:  f.adminID,
		Role:     domain.RoleAdmin,
		BranchID: f.branchID,
		Items: []usecase.BatchLine{
			{ProductID: f.croissantID, Quantity: 5, Source: domain.SourceBaked},
		},
		Endpoint: "POST /v1/batches",
	}
}

func createBatch(t *testing.T, svc usecase.BatchService, in usecase.CreateBatchInput) int64 {
	t.Helper()
	res, err := svc.Create(t.Context(), in)
	require.NoError(t, err)
	var out usecase.BatchResponse
	require.NoError(t, json.Unmarshal(res.Payload, &out))
	return out.ID
}

func TestBatchCreate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewBatchService(f.store, 0)
	svc.Now = func() time.Time { return frozen }

	res, err := svc.Create(t.Context(), batchInput(f))
	require.NoError(t, err)
	var out usecase.BatchResponse
	require.NoError(t, json.Unmarshal(res.Payload, &out))
	assert.Equal(t, string(domain.BatchSent), out.Status)

	assert.Equal(t, int64(15), f.stock(t, f.croissantID))

	movements, err := usecase.NewInventoryService(f.store).MovementsFor(t.Context(), "batch", out.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, domain.MovementBatchIn, movements[0].MovementType)
	assert.Equal(t, int64(5), movements[0].QuantityChange)
}

func TestBatchCreate_OfflineAttribution(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewBatchService(f.store, 0)
	svc.Now = func() time.Time { return frozen }

	queuedAt := frozen.Add(-2 * time.Hour)
	in := batchInput(f)
	in.IsOffline = true
	in.OriginalActorID = &f.cashierID
	in.QueuedCreatedAt = &queuedAt
	id := createBatch(t, svc, in)

	batch, _, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	// The offline creator keeps authorship; the syncing actor is recorded
	// apart, and the batch date is the queued-at time.
	assert.Equal(t, f.cashierID, batch.CreatorActorID)
	require.NotNil(t, batch.SyncedByActorID)
	assert.Equal(t, f.adminID, *batch.SyncedByActorID)
	assert.True(t, batch.BatchDate.Equal(queuedAt))
	assert.True(t, batch.IsOffline)
	// A batch that arrives through the sync queue waits in pending until the
	// device confirms it, unlike one posted live.
	assert.Equal(t, domain.BatchPending, batch.Status)
}

func TestBatchCreate_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewBatchService(f.store, 0)
	svc.Now = func() time.Time { return frozen }

	tests := []struct {
		name   string
		mutate func(*usecase.CreateBatchInput)
	}{
		{"no items", func(in *usecase.CreateBatchInput) { in.Items = nil }},
		{"zero quantity", func(in *usecase.CreateBatchInput) { in.Items[0].Quantity = 0 }},
		{"bad source", func(in *usecase.CreateBatchInput) { in.Items[0].Source = "stolen" }},
		{"duplicate line", func(in *usecase.CreateBatchInput) {
			in.Items = append(in.Items, in.Items[0])
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := batchInput(f)
			tc.mutate(&in)
			_, err := svc.Create(t.Context(), in)
			require.Error(t, err)
			assert.Equal(t, domain.CodeValidationFailed, domain.CodeOf(err))
		})
	}

	t.Run("cashier may not create", func(t *testing.T) {
		in := batchInput(f)
		in.Role = domain.RoleCashier
		_, err := svc.Create(t.Context(), in)
		require.Error(t, err)
		assert.Equal(t, domain.CodeAuthForbidden, domain.CodeOf(err))
	})
}

func TestBatchEdit_WithinWindow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewBatchService(f.store, 20*time.Minute)
	svc.Now = func() time.Time { return frozen }
	id := createBatch(t, svc, batchInput(f))

	svc.Now = func() time.Time { return frozen.Add(5 * time.Minute) }
	_, err := svc.Edit(t.Context(), usecase.EditBatchInput{
		ActorID: f.adminID, Role: domain.RoleAdmin, BatchID: id,
		Items: []usecase.BatchLine{{ProductID: f.croissantID, Quantity: 8, Source: domain.SourceBaked}},
	})
	require.NoError(t, err)

	// 5 -> 8 produces one +3 compensating movement on top of the original.
	assert.Equal(t, int64(18), f.stock(t, f.croissantID))
	batch, items, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchEdited, batch.Status)
	require.Len(t, items, 1)
	assert.Equal(t, int64(8), items[0].Quantity)

	movements, err := usecase.NewInventoryService(f.store).MovementsFor(t.Context(), "batch", id)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, int64(3), movements[1].QuantityChange)
}

func TestBatchEdit_DroppedLineReversed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewBatchService(f.store, 20*time.Minute)
	svc.Now = func() time.Time { return frozen }

	in := batchInput(f)
	in.Items = append(in.Items, usecase.BatchLine{ProductID: f.loafID, Quantity: 4, Source: domain.SourcePurchased})
	id := createBatch(t, svc, in)
	require.Equal(t, int64(14), f.stock(t, f.loafID))

	// Dropping the loaf line reverses its full quantity.
	_, err := svc.Edit(t.Context(), usecase.EditBatchInput{
		ActorID: f.adminID, Role: domain.RoleAdmin, BatchID: id,
		Items: []usecase.BatchLine{{ProductID: f.croissantID, Quantity: 5, Source: domain.SourceBaked}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.stock(t, f.loafID))
	assert.Equal(t, int64(15), f.stock(t, f.croissantID))
}

func TestBatchEdit_WindowExpired(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewBatchService(f.store, 20*time.Minute)
	svc.Now = func() time.Time { return frozen }
	id := createBatch(t, svc, batchInput(f))

	svc.Now = func() time.Time { return frozen.Add(21 * time.Minute) }
	_, err := svc.Edit(t.Context(), usecase.EditBatchInput{
		ActorID: f.adminID, Role: domain.RoleAdmin, BatchID: id,
		Items: []usecase.BatchLine{{ProductID: f.croissantID, Quantity: 8, Source: domain.SourceBaked}},
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeBatchLocked, domain.CodeOf(err))
	details := domain.DetailsOf(err)
	require.NotNil(t, details)
	assert.Equal(t, id, details["batch_id"])
	assert.Equal(t, int64(21*60), details["age_seconds"])

	// Nothing changed.
	assert.Equal(t, int64(15), f.stock(t, f.croissantID))
}

func TestBatchEdit_OnlyCreatorOrAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewBatchService(f.store, 20*time.Minute)
	svc.Now = func() time.Time { return frozen }
	id := createBatch(t, svc, batchInput(f))

	// A manager who is not the creator is refused.
	_, err := svc.Edit(t.Context(), usecase.EditBatchInput{
		ActorID: f.cashierID, Role: domain.RoleManager, BatchID: id,
		Items: []usecase.BatchLine{{ProductID: f.croissantID, Quantity: 1, Source: domain.SourceBaked}},
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeAuthForbidden, domain.CodeOf(err))
}

func TestBatchVoid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewBatchService(f.store, 20*time.Minute)
	svc.Now = func() time.Time { return frozen }
	id := createBatch(t, svc, batchInput(f))
	require.Equal(t, int64(15), f.stock(t, f.croissantID))

	_, err := svc.Void(t.Context(), adminGate(f), domain.RoleAdmin, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.stock(t, f.croissantID))
	batch, _, err := svc.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchVoided, batch.Status)

	// A voided batch is locked for good.
	_, err = svc.Edit(t.Context(), usecase.EditBatchInput{
		ActorID: f.adminID, Role: domain.RoleAdmin, BatchID: id,
		Items: []usecase.BatchLine{{ProductID: f.croissantID, Quantity: 2, Source: domain.SourceBaked}},
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeBatchLocked, domain.CodeOf(err))
}

func TestBatchCreate_IdempotentReplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := usecase.NewBatchService(f.store, 0)
	svc.Now = func() time.Time { return frozen }

	in := batchInput(f)
	in.IdempotencyKey = "batch-key-1"
	first, err := svc.Create(t.Context(), in)
	require.NoError(t, err)
	replay, err := svc.Create(t.Context(), in)
	require.NoError(t, err)

	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Payload, replay.Payload)
	assert.Equal(t, int64(15), f.stock(t, f.croissantID))
}
