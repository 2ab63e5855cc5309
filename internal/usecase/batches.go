package usecase

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/breadworks/bakeops/internal/domain"
)

// BatchService manages the production batch lifecycle. Edits and voids are
// gated by role, ownership and the configurable edit window.
type BatchService struct {
	Store      domain.Store
	EditWindow time.Duration
	Now        func() time.Time
}

// NewBatchService constructs a BatchService. editWindow <= 0 falls back to
// the 20 minute default.
func NewBatchService(store domain.Store, editWindow time.Duration) BatchService {
	if editWindow <= 0 {
		editWindow = 20 * time.Minute
	}
	return BatchService{Store: store, EditWindow: editWindow, Now: func() time.Time { return time.Now().UTC() }}
}

// BatchLine is one produced line of a batch request.
type BatchLine struct {
	ProductID int64              `json:"product_id" validate:"required,gt=0"`
	Quantity  int64              `json:"quantity" validate:"required,gte=1"`
	Source    domain.StockSource `json:"source" validate:"required,oneof=baked purchased"`
}

// CreateBatchInput carries a batch creation command with auth and offline
// attribution context.
type CreateBatchInput struct {
	ActorID         int64
	Role            domain.Role
	BranchID        int64
	Items           []BatchLine
	Notes           string
	IdempotencyKey  string
	Endpoint        string
	IsOffline       bool
	OriginalActorID *int64
	QueuedCreatedAt *time.Time
}

// BatchResponse is the payload persisted against the idempotency key.
type BatchResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// Create inserts the batch, its items and the batch_in movements in one
// transaction. When replayed offline work carries original_actor_id, the
// batch keeps the original creator and records the syncing actor apart.
func (s BatchService) Create(ctx domain.Context, in CreateBatchInput) (CommitResult, error) {
	if !domain.Can(in.Role, domain.ActionCreateBatch) {
		return CommitResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not create batches")
	}
	if err := validateBatchLines(in.Items); err != nil {
		return CommitResult{}, err
	}

	var out CommitResult
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		adm, err := Admit(ctx, tx, in.ActorID, in.IdempotencyKey, in.Endpoint)
		if err != nil {
			return err
		}
		if adm.Replayed {
			out = CommitResult{Replayed: true, Payload: adm.Payload}
			return nil
		}

		now := s.Now()
		// Offline-queued batches land in pending; direct ones go straight
		// to sent.
		status := domain.BatchSent
		if in.IsOffline {
			status = domain.BatchPending
		}
		batch := domain.Batch{
			BranchID:       in.BranchID,
			CreatorActorID: in.ActorID,
			BatchDate:      now,
			Status:         status,
			Notes:          in.Notes,
			IsOffline:      in.IsOffline,
		}
		if in.IsOffline && in.OriginalActorID != nil {
			batch.CreatorActorID = *in.OriginalActorID
			batch.SyncedByActorID = &in.ActorID
			batch.SyncedAt = &now
			if in.QueuedCreatedAt != nil {
				batch.BatchDate = *in.QueuedCreatedAt
			}
		}
		if _, err := tx.Batches().Create(ctx, &batch); err != nil {
			return err
		}

		items := make([]domain.BatchItem, 0, len(in.Items))
		movements := make([]domain.Movement, 0, len(in.Items))
		for _, line := range in.Items {
			if _, err := tx.Products().GetActive(ctx, line.ProductID); err != nil {
				return err
			}
			items = append(items, domain.BatchItem{
				BatchID: batch.ID, ProductID: line.ProductID, Quantity: line.Quantity, Source: line.Source,
			})
			movements = append(movements, domain.Movement{
				BranchID:       in.BranchID,
				ProductID:      line.ProductID,
				MovementType:   domain.MovementBatchIn,
				QuantityChange: line.Quantity,
				Source:         line.Source,
				ReferenceType:  "batch",
				ReferenceID:    batch.ID,
				ActorID:        batch.CreatorActorID,
			})
		}
		if err := tx.Batches().InsertItems(ctx, batch.ID, items); err != nil {
			return err
		}
		levels, err := tx.Inventory().ApplyMovements(ctx, movements)
		if err != nil {
			return err
		}
		if err := EvaluateLowStock(ctx, tx, in.BranchID, levels); err != nil {
			return err
		}

		payload, err := json.Marshal(BatchResponse{ID: batch.ID, Status: string(batch.Status)})
		if err != nil {
			return fmt.Errorf("op=batch.encode_response: %w", err)
		}
		if err := adm.StoreResponse(ctx, tx, payload); err != nil {
			return err
		}
		out = CommitResult{Payload: payload}
		return nil
	})
	return out, err
}

// EditBatchInput carries a batch edit command.
type EditBatchInput struct {
	ActorID        int64
	Role           domain.Role
	BatchID        int64
	Items          []BatchLine
	Notes          *string
	IdempotencyKey string
	Endpoint       string
}

// Edit diffs the desired item set against the current one and applies one
// compensating movement per changed (product, source) line.
func (s BatchService) Edit(ctx domain.Context, in EditBatchInput) (CommitResult, error) {
	if !domain.Can(in.Role, domain.ActionEditBatch) {
		return CommitResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not edit batches")
	}
	if err := validateBatchLines(in.Items); err != nil {
		return CommitResult{}, err
	}

	var out CommitResult
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		adm, err := Admit(ctx, tx, in.ActorID, in.IdempotencyKey, in.Endpoint)
		if err != nil {
			return err
		}
		if adm.Replayed {
			out = CommitResult{Replayed: true, Payload: adm.Payload}
			return nil
		}

		batch, err := tx.Batches().Get(ctx, in.BatchID)
		if err != nil {
			return err
		}
		if err := s.mutable(batch, in.ActorID, in.Role); err != nil {
			return err
		}

		current, err := tx.Batches().Items(ctx, in.BatchID)
		if err != nil {
			return err
		}
		type lineKey struct {
			productID int64
			source    domain.StockSource
		}
		old := make(map[lineKey]int64, len(current))
		for _, it := range current {
			old[lineKey{it.ProductID, it.Source}] = it.Quantity
		}
		desired := make(map[lineKey]int64, len(in.Items))
		for _, it := range in.Items {
			desired[lineKey{it.ProductID, it.Source}] = it.Quantity
		}

		var movements []domain.Movement
		for k, newQty := range desired {
			if delta := newQty - old[k]; delta != 0 {
				movements = append(movements, domain.Movement{
					BranchID: batch.BranchID, ProductID: k.productID,
					MovementType: domain.MovementBatchIn, QuantityChange: delta,
					Source: k.source, ReferenceType: "batch", ReferenceID: batch.ID,
					ActorID: in.ActorID,
				})
			}
		}
		for k, oldQty := range old {
			if _, kept := desired[k]; !kept {
				movements = append(movements, domain.Movement{
					BranchID: batch.BranchID, ProductID: k.productID,
					MovementType: domain.MovementBatchIn, QuantityChange: -oldQty,
					Source: k.source, ReferenceType: "batch", ReferenceID: batch.ID,
					ActorID: in.ActorID,
				})
			}
		}

		newItems := make([]domain.BatchItem, 0, len(in.Items))
		for _, line := range in.Items {
			newItems = append(newItems, domain.BatchItem{
				BatchID: batch.ID, ProductID: line.ProductID, Quantity: line.Quantity, Source: line.Source,
			})
		}
		if err := tx.Batches().ReplaceItems(ctx, batch.ID, newItems); err != nil {
			return err
		}
		if len(movements) > 0 {
			levels, err := tx.Inventory().ApplyMovements(ctx, movements)
			if err != nil {
				return err
			}
			if err := EvaluateLowStock(ctx, tx, batch.BranchID, levels); err != nil {
				return err
			}
		}
		if err := tx.Batches().UpdateStatus(ctx, batch.ID, domain.BatchEdited); err != nil {
			return err
		}

		payload, err := json.Marshal(BatchResponse{ID: batch.ID, Status: string(domain.BatchEdited)})
		if err != nil {
			return fmt.Errorf("op=batch.encode_response: %w", err)
		}
		if err := adm.StoreResponse(ctx, tx, payload); err != nil {
			return err
		}
		out = CommitResult{Payload: payload}
		return nil
	})
	return out, err
}

// Void reverses every surviving item with an equal-magnitude negative
// void_out movement and marks the batch voided.
func (s BatchService) Void(ctx domain.Context, g Gate, role domain.Role, batchID int64) (MutationResult, error) {
	if !domain.Can(role, domain.ActionVoidBatch) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not void batches")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		batch, err := tx.Batches().Get(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if err := s.mutable(batch, g.ActorID, role); err != nil {
			return nil, err
		}
		items, err := tx.Batches().Items(ctx, batchID)
		if err != nil {
			return nil, err
		}
		movements := make([]domain.Movement, 0, len(items))
		for _, it := range items {
			movements = append(movements, domain.Movement{
				BranchID: batch.BranchID, ProductID: it.ProductID,
				MovementType: domain.MovementVoidOut, QuantityChange: -it.Quantity,
				Source: it.Source, ReferenceType: "batch", ReferenceID: batch.ID,
				ActorID: g.ActorID,
			})
		}
		if len(movements) > 0 {
			if _, err := tx.Inventory().ApplyMovements(ctx, movements); err != nil {
				return nil, err
			}
		}
		if err := tx.Batches().UpdateStatus(ctx, batchID, domain.BatchVoided); err != nil {
			return nil, err
		}
		if _, err := tx.Activity().Insert(ctx, domain.ActivityEntry{
			BranchID: batch.BranchID, ActorID: g.ActorID, Action: "batch.void",
			Details: domain.Metadata{"batch_id": batch.ID},
		}); err != nil {
			return nil, err
		}
		return BatchResponse{ID: batch.ID, Status: string(domain.BatchVoided)}, nil
	})
}

// Get loads one batch with its items.
func (s BatchService) Get(ctx domain.Context, batchID int64) (domain.Batch, []domain.BatchItem, error) {
	var b domain.Batch
	var items []domain.BatchItem
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		if b, err = tx.Batches().Get(ctx, batchID); err != nil {
			return err
		}
		items, err = tx.Batches().Items(ctx, batchID)
		return err
	})
	return b, items, err
}

// ListByBranch pages batches for a branch, newest first.
func (s BatchService) ListByBranch(ctx domain.Context, branchID int64, limit, offset int) ([]domain.Batch, error) {
	var out []domain.Batch
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Batches().ListByBranch(ctx, branchID, limit, offset)
		return err
	})
	return out, err
}

// mutable enforces the edit/void gate: not voided, within the window,
// creator or admin.
func (s BatchService) mutable(batch domain.Batch, actorID int64, role domain.Role) error {
	if batch.Status == domain.BatchVoided {
		return domain.Coded(domain.ErrConflict, domain.CodeBatchLocked, "batch is voided")
	}
	if age := s.Now().Sub(batch.CreatedAt); age > s.EditWindow {
		return domain.Coded(domain.ErrConflict, domain.CodeBatchLocked,
			fmt.Sprintf("edit window of %s has passed", s.EditWindow)).
			WithDetails(map[string]any{"batch_id": batch.ID, "age_seconds": int64(age.Seconds())})
	}
	if role != domain.RoleAdmin && batch.CreatorActorID != actorID {
		return domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "only the batch creator or an admin may change it")
	}
	return nil
}

func validateBatchLines(items []BatchLine) error {
	if len(items) == 0 {
		return domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "a batch needs at least one item")
	}
	type lineKey struct {
		productID int64
		source    domain.StockSource
	}
	seen := make(map[lineKey]bool, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
				fmt.Sprintf("quantity must be >= 1 for product %d", it.ProductID))
		}
		if it.Source != domain.SourceBaked && it.Source != domain.SourcePurchased {
			return domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
				fmt.Sprintf("unknown source %q", it.Source))
		}
		k := lineKey{it.ProductID, it.Source}
		if seen[k] {
			return domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
				fmt.Sprintf("duplicate line for product %d source %s", it.ProductID, it.Source))
		}
		seen[k] = true
	}
	return nil
}
