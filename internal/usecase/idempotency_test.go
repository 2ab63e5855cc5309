package usecase_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

func TestAdmit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	admit := func(actorID int64, key, endpoint string) (usecase.Admission, error) {
		var adm usecase.Admission
		err := f.store.WithTx(t.Context(), func(ctx domain.Context, tx domain.StoreTx) error {
			var err error
			adm, err = usecase.Admit(ctx, tx, actorID, key, endpoint)
			if err != nil {
				return err
			}
			return adm.StoreResponse(ctx, tx, []byte(`{"ok":true}`))
		})
		return adm, err
	}

	t.Run("empty key admits unprotected", func(t *testing.T) {
		adm, err := admit(f.cashierID, "", "POST /v1/sales")
		require.NoError(t, err)
		assert.False(t, adm.Replayed)
	})

	t.Run("key without actor is rejected", func(t *testing.T) {
		_, err := admit(0, "k1", "POST /v1/sales")
		require.Error(t, err)
		assert.Equal(t, domain.CodeAuthRequired, domain.CodeOf(err))
	})

	t.Run("oversized key is rejected", func(t *testing.T) {
		_, err := admit(f.cashierID, strings.Repeat("x", domain.MaxIdempotencyKeyLen+1), "POST /v1/sales")
		require.Error(t, err)
		assert.Equal(t, domain.CodeValidationFailed, domain.CodeOf(err))
	})

	t.Run("winner then replay", func(t *testing.T) {
		first, err := admit(f.cashierID, "k2", "POST /v1/sales")
		require.NoError(t, err)
		require.False(t, first.Replayed)

		second, err := admit(f.cashierID, "k2", "POST /v1/sales")
		require.NoError(t, err)
		assert.True(t, second.Replayed)
		assert.JSONEq(t, `{"ok":true}`, string(second.Payload))
	})

	t.Run("keys are scoped per actor", func(t *testing.T) {
		first, err := admit(f.cashierID, "k3", "POST /v1/sales")
		require.NoError(t, err)
		require.False(t, first.Replayed)

		other, err := admit(f.adminID, "k3", "POST /v1/sales")
		require.NoError(t, err)
		assert.False(t, other.Replayed)
	})

	t.Run("endpoint mismatch", func(t *testing.T) {
		_, err := admit(f.cashierID, "k4", "POST /v1/sales")
		require.NoError(t, err)

		_, err = admit(f.cashierID, "k4", "POST /v1/batches")
		require.Error(t, err)
		assert.Equal(t, domain.CodeIdemEndpointMism, domain.CodeOf(err))
	})
}

func TestGateRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	t.Run("failed execution leaves the key unconsumed", func(t *testing.T) {
		g := usecase.Gate{ActorID: f.adminID, Key: "gk-1", Endpoint: "POST /v1/expenses"}
		_, err := g.Run(t.Context(), f.store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
			return nil, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "bad row")
		})
		require.Error(t, err)

		// The rollback freed the key, so a corrected retry executes fresh.
		res, err := g.Run(t.Context(), f.store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
			return map[string]any{"id": int64(7)}, nil
		})
		require.NoError(t, err)
		assert.False(t, res.Replayed)
		assert.JSONEq(t, `{"id":7}`, string(res.Payload))
	})

	t.Run("nil result stores an empty payload", func(t *testing.T) {
		g := usecase.Gate{ActorID: f.adminID, Key: "gk-2", Endpoint: "DELETE /v1/expenses/{id}"}
		first, err := g.Run(t.Context(), f.store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.Empty(t, first.Payload)

		replay, err := g.Run(t.Context(), f.store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
			t.Fatal("replayed gate must not execute")
			return nil, nil
		})
		require.NoError(t, err)
		assert.True(t, replay.Replayed)
		assert.Empty(t, replay.Payload)
	})
}
