package httpserver

import (
	"net/http"

	"github.com/breadworks/bakeops/internal/adapter/observability"
	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

type batchItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gte=1"`
	Source    string `json:"source" validate:"required,oneof=baked purchased"`
}

type createBatchRequest struct {
	Items []batchItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes string             `json:"notes"`
}

func batchLines(items []batchItemRequest) []usecase.BatchLine {
	out := make([]usecase.BatchLine, 0, len(items))
	for _, it := range items {
		out = append(out, usecase.BatchLine{
			ProductID: it.ProductID, Quantity: it.Quantity, Source: domain.StockSource(it.Source),
		})
	}
	return out
}

// CreateBatchHandler inserts a production batch and its stock movements.
func (s *Server) CreateBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		var req createBatchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.Batches.Create(r.Context(), usecase.CreateBatchInput{
			ActorID:         id.ActorID,
			Role:            id.Role,
			BranchID:        id.BranchID,
			Items:           batchLines(req.Items),
			Notes:           req.Notes,
			IdempotencyKey:  idemKey(r),
			Endpoint:        "POST /v1/inventory/batches",
			IsOffline:       id.IsOffline,
			OriginalActorID: id.OriginalActorID,
			QueuedCreatedAt: id.QueuedCreatedAt,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if res.Replayed {
			observability.ObserveReplay("POST /v1/inventory/batches")
			w.Header().Set("X-Idempotent-Replay", "true")
		}
		writeRaw(w, http.StatusCreated, res.Payload)
	}
}

type editBatchRequest struct {
	Items []batchItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes *string            `json:"notes,omitempty"`
}

// EditBatchHandler replaces a batch's item set within the edit window.
func (s *Server) EditBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		batchID, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req editBatchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.Batches.Edit(r.Context(), usecase.EditBatchInput{
			ActorID:        id.ActorID,
			Role:           id.Role,
			BatchID:        batchID,
			Items:          batchLines(req.Items),
			Notes:          req.Notes,
			IdempotencyKey: idemKey(r),
			Endpoint:       "PUT /v1/inventory/batches",
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if res.Replayed {
			observability.ObserveReplay("PUT /v1/inventory/batches")
			w.Header().Set("X-Idempotent-Replay", "true")
		}
		writeRaw(w, http.StatusOK, res.Payload)
	}
}

// VoidBatchHandler reverses a batch's stock contribution.
func (s *Server) VoidBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		batchID, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "POST /v1/inventory/batches/{id}/void"
		res, err := s.Batches.Void(r.Context(), mutationGate(r, endpoint), id.Role, batchID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

// GetBatchHandler loads one batch with items.
func (s *Server) GetBatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		batch, items, err := s.Batches.Get(r.Context(), batchID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, batchJSON(batch, items))
	}
}

// ListBatchesHandler pages batches for the acting branch.
func (s *Server) ListBatchesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		batches, err := s.Batches.ListByBranch(r.Context(), id.BranchID,
			queryInt(r, "limit", 50), queryInt(r, "offset", 0))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]map[string]any, 0, len(batches))
		for _, b := range batches {
			out = append(out, batchJSON(b, nil))
		}
		writeJSON(w, http.StatusOK, map[string]any{"batches": out})
	}
}

func batchJSON(b domain.Batch, items []domain.BatchItem) map[string]any {
	out := map[string]any{
		"id":               b.ID,
		"branch_id":        b.BranchID,
		"creator_actor_id": b.CreatorActorID,
		"batch_date":       b.BatchDate.UTC(),
		"status":           string(b.Status),
		"notes":            b.Notes,
		"is_offline":       b.IsOffline,
	}
	if b.SyncedByActorID != nil {
		out["synced_by_actor_id"] = *b.SyncedByActorID
	}
	if items != nil {
		lines := make([]map[string]any, 0, len(items))
		for _, it := range items {
			lines = append(lines, map[string]any{
				"product_id": it.ProductID, "quantity": it.Quantity, "source": string(it.Source),
			})
		}
		out["items"] = lines
	}
	return out
}
