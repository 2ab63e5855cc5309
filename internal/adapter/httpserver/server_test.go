package httpserver_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/breadworks/bakeops/internal/adapter/httpserver"
	"github.com/breadworks/bakeops/internal/adapter/repo/memory"
	"github.com/breadworks/bakeops/internal/config"
	"github.com/breadworks/bakeops/internal/domain"
)

type apiFixture struct {
	store  *memory.Store
	srv    *httpserver.Server
	router *chi.Mux

	branchID    int64
	otherBranch int64
	adminID     int64
	cashierID   int64
	croissantID int64
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{store: memory.NewStore()}

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pw"), bcrypt.MinCost)
	require.NoError(t, err)

	f.store.Seed(func(tx domain.StoreTx) {
		ctx := t.Context()
		branch := domain.Branch{Name: "Main Street"}
		f.branchID, err = tx.Branches().Create(ctx, &branch)
		require.NoError(t, err)
		other := domain.Branch{Name: "Harbor"}
		f.otherBranch, err = tx.Branches().Create(ctx, &other)
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
		require.NoError(t, tx.Actors().UpsertBranchAccess(ctx, f.cashierID, f.branchID))

		croissant := domain.Product{Name: "Croissant", Price: 2.50, Unit: "piece"}
		f.croissantID, err = tx.Products().Create(ctx, &croissant)
		require.NoError(t, err)

		_, err = tx.Inventory().ApplyMovements(ctx, []domain.Movement{
			{BranchID: f.branchID, ProductID: f.croissantID, MovementType: domain.MovementBatchIn,
				QuantityChange: 10, Source: domain.SourceBaked, ReferenceType: "batch", ActorID: f.adminID},
		})
		require.NoError(t, err)
	})

	cfg := config.Config{
		JWTSecret:              "unit-test-signing-secret-0123456789",
		JWTTokenTTL:            time.Hour,
		AdminRecoveryKey:       "break-glass",
		BatchEditWindow:        20 * time.Minute,
		ArchiveRetentionMonths: 6,
		ArchiveColdAfterMonths: 24,
	}
	f.srv = httpserver.NewServer(cfg, f.store)
	f.router = chi.NewRouter()
	f.srv.Routes(f.router)
	return f
}

// do executes one request against the in-process router.
func (f *apiFixture) do(t *testing.T, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T, username string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/auth/login", "",
		map[string]any{"username": username, "password": "s3cret-pw"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.Token)
	return res.Token
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	require.NotEmpty(t, env.Error, rec.Body.String())
	return env.Code
}

func TestLogin(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	t.Run("issues a token", func(t *testing.T) {
		token := f.login(t, "ops-admin")
		assert.NotEmpty(t, token)
	})

	t.Run("uniform rejection for bad credentials", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/auth/login", "",
			map[string]any{"username": "ops-admin", "password": "wrong"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "AUTH_REQUIRED", errCode(t, rec))
	})
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/inventory", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_REQUIRED", errCode(t, rec))
}

func TestCommitSaleEndpoint(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	token := f.login(t, "till-1")

	body := map[string]any{
		"items":          []map[string]any{{"product_id": f.croissantID, "quantity": 4}},
		"payment_method": "cash",
	}

	rec := f.do(t, http.MethodPost, "/v1/sales", token, body,
		map[string]string{"X-Idempotency-Key": "sale-http-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var receipt struct {
		ID            int64   `json:"id"`
		ReceiptNumber string  `json:"receipt_number"`
		TotalAmount   float64 `json:"total_amount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.InDelta(t, 10.0, receipt.TotalAmount, 1e-9)
	assert.NotEmpty(t, receipt.ReceiptNumber)
	assert.Empty(t, rec.Header().Get("X-Idempotent-Replay"))

	// Same key replays the stored payload byte for byte.
	replay := f.do(t, http.MethodPost, "/v1/sales", token, body,
		map[string]string{"X-Idempotency-Key": "sale-http-1"})
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, rec.Body.Bytes(), replay.Body.Bytes())
}

func TestCommitSaleInsufficientStock(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	token := f.login(t, "till-1")

	rec := f.do(t, http.MethodPost, "/v1/sales", token, map[string]any{
		"items":          []map[string]any{{"product_id": f.croissantID, "quantity": 100}},
		"payment_method": "cash",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", errCode(t, rec))
}

func TestCommitSaleValidation(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	token := f.login(t, "till-1")

	rec := f.do(t, http.MethodPost, "/v1/sales", token, map[string]any{
		"items":          []map[string]any{},
		"payment_method": "cash",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, rec))
}

func TestLocationPinning(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	t.Run("cashier denied on a branch without access", func(t *testing.T) {
		token := f.login(t, "till-1")
		rec := f.do(t, http.MethodGet, "/v1/inventory", token, nil,
			map[string]string{"X-Location-Id": fmt.Sprint(f.otherBranch)})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "AUTH_FORBIDDEN", errCode(t, rec))
	})

	t.Run("admin may pin any branch", func(t *testing.T) {
		token := f.login(t, "ops-admin")
		rec := f.do(t, http.MethodGet, "/v1/inventory", token, nil,
			map[string]string{"X-Location-Id": fmt.Sprint(f.otherBranch)})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAdminSubtreeGuard(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	token := f.login(t, "till-1")

	rec := f.do(t, http.MethodPost, "/v1/admin/staff", token, map[string]any{
		"full_name": "New Baker", "phone_number": "+491511234567",
		"role_preference": "cashier", "branch_id": f.branchID,
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTH_FORBIDDEN", errCode(t, rec))
}

func TestBatchLifecycleEndpoints(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	token := f.login(t, "ops-admin")

	create := f.do(t, http.MethodPost, "/v1/inventory/batches", token, map[string]any{
		"items": []map[string]any{{"product_id": f.croissantID, "quantity": 6, "source": "baked"}},
		"notes": "morning bake",
	}, map[string]string{"X-Idempotency-Key": "batch-http-1"})
	require.Equal(t, http.StatusCreated, create.Code, create.Body.String())

	var res struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(create.Body.Bytes(), &res))
	assert.Equal(t, "sent", res.Status)

	get := f.do(t, http.MethodGet, fmt.Sprintf("/v1/inventory/batches/%d", res.ID), token, nil, nil)
	require.Equal(t, http.StatusOK, get.Code)

	void := f.do(t, http.MethodPost, fmt.Sprintf("/v1/inventory/batches/%d/void", res.ID), token, nil, nil)
	require.Equal(t, http.StatusOK, void.Code, void.Body.String())

	// A voided batch is locked forever.
	edit := f.do(t, http.MethodPut, fmt.Sprintf("/v1/inventory/batches/%d", res.ID), token, map[string]any{
		"items": []map[string]any{{"product_id": f.croissantID, "quantity": 2, "source": "baked"}},
	}, nil)
	assert.Equal(t, http.StatusConflict, edit.Code)
	assert.Equal(t, "BATCH_LOCKED", errCode(t, edit))
}

func TestOfflineBatchAttribution(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	token := f.login(t, "ops-admin")
	queuedAt := time.Date(2026, 3, 13, 6, 30, 0, 0, time.UTC)

	create := f.do(t, http.MethodPost, "/v1/inventory/batches", token, map[string]any{
		"items": []map[string]any{{"product_id": f.croissantID, "quantity": 3, "source": "baked"}},
	}, map[string]string{
		"X-Idempotency-Key":   "offline-batch-1",
		"X-Queued-Request":    "true",
		"X-Offline-Actor-Id":  fmt.Sprint(f.cashierID),
		"X-Queued-Created-At": queuedAt.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, create.Code, create.Body.String())

	var res struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(create.Body.Bytes(), &res))

	get := f.do(t, http.MethodGet, fmt.Sprintf("/v1/inventory/batches/%d", res.ID), token, nil, nil)
	require.Equal(t, http.StatusOK, get.Code)
	var batch struct {
		CreatorActorID  int64  `json:"creator_actor_id"`
		SyncedByActorID int64  `json:"synced_by_actor_id"`
		IsOffline       bool   `json:"is_offline"`
		Status          string `json:"status"`
		BatchDate       string `json:"batch_date"`
	}
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &batch))
	assert.Equal(t, f.cashierID, batch.CreatorActorID)
	assert.Equal(t, f.adminID, batch.SyncedByActorID)
	assert.True(t, batch.IsOffline)
	assert.Equal(t, "pending", batch.Status)
}

func TestExpenseEndpointIdempotent(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	token := f.login(t, "ops-admin")

	body := map[string]any{"amount": 42.50, "category": "ingredients", "notes": "flour restock"}
	headers := map[string]string{"X-Idempotency-Key": "expense-http-1"}

	first := f.do(t, http.MethodPost, "/v1/expenses", token, body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get("X-Idempotent-Replay"))

	// A retried submission must not write a second row.
	replay := f.do(t, http.MethodPost, "/v1/expenses", token, body, headers)
	require.Equal(t, http.StatusCreated, replay.Code, replay.Body.String())
	assert.Equal(t, "true", replay.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, first.Body.Bytes(), replay.Body.Bytes())

	list := f.do(t, http.MethodGet, "/v1/expenses", token, nil, nil)
	require.Equal(t, http.StatusOK, list.Code)
	var got struct {
		Expenses []struct {
			Amount float64 `json:"amount"`
		} `json:"expenses"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &got))
	require.Len(t, got.Expenses, 1)
	assert.InDelta(t, 42.50, got.Expenses[0].Amount, 1e-9)
}

func TestArchiveRunEndpoint(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	token := f.login(t, "ops-admin")

	t.Run("wrong confirmation phrase", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/archive/run", token,
			map[string]any{"confirmation": "yes please"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "ARCHIVE_CONFIRMATION_MISMATCH", errCode(t, rec))
	})

	t.Run("runs with the stored phrase", func(t *testing.T) {
		settings := f.do(t, http.MethodGet, "/v1/archive/settings", token, nil, nil)
		require.Equal(t, http.StatusOK, settings.Code)
		var got struct {
			ConfirmationPhrase string `json:"confirmation_phrase"`
		}
		require.NoError(t, json.Unmarshal(settings.Body.Bytes(), &got))

		rec := f.do(t, http.MethodPost, "/v1/archive/run", token,
			map[string]any{"confirmation": got.ConfirmationPhrase}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var run struct {
			Status  string `json:"status"`
			RunType string `json:"run_type"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
		assert.Equal(t, "success", run.Status)
		assert.Equal(t, "manual", run.RunType)
	})
}

func TestRecoverAdminEndpoint(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/auth/recover-admin-account", "", map[string]any{
		"recovery_key": "break-glass", "username": "ops-admin", "new_password": "fresh-pass-9",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	login := f.do(t, http.MethodPost, "/v1/auth/login", "",
		map[string]any{"username": "ops-admin", "password": "fresh-pass-9"}, nil)
	assert.Equal(t, http.StatusOK, login.Code)
}
