package usecase

import (
	"github.com/breadworks/bakeops/internal/domain"
)

// InventoryService exposes stock reads and manual adjustments. Adjustments
// never write stock_levels directly; they go through the ledger like every
// other stock change.
type InventoryService struct {
	Store domain.Store
}

// NewInventoryService constructs an InventoryService.
func NewInventoryService(store domain.Store) InventoryService { return InventoryService{Store: store} }

// StockByBranch lists current stock for a branch.
func (s InventoryService) StockByBranch(ctx domain.Context, branchID int64) ([]domain.StockLevel, error) {
	var out []domain.StockLevel
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Inventory().StockByBranch(ctx, branchID)
		return err
	})
	return out, err
}

// setLevelTx adjusts a pair to an absolute target quantity by emitting a
// manual_adjustment movement for the delta. Setting the current quantity
// is a no-op and succeeds without a ledger row.
func setLevelTx(ctx domain.Context, tx domain.StoreTx, actorID, branchID, productID, target int64, source domain.StockSource, note string) (domain.StockLevel, error) {
	if _, err := tx.Products().GetActive(ctx, productID); err != nil {
		return domain.StockLevel{}, err
	}
	lvl, ok, err := tx.Inventory().Stock(ctx, branchID, productID)
	if err != nil {
		return domain.StockLevel{}, err
	}
	var current int64
	if ok {
		current = lvl.Quantity
	}
	delta := target - current
	if delta == 0 {
		return lvl, nil
	}
	if source == "" {
		source = stockSource(ctx, tx, branchID, productID)
	}
	levels, err := tx.Inventory().ApplyMovements(ctx, []domain.Movement{{
		BranchID:       branchID,
		ProductID:      productID,
		MovementType:   domain.MovementManualAdjustment,
		QuantityChange: delta,
		Source:         source,
		ReferenceType:  "manual",
		ActorID:        actorID,
		Metadata:       domain.Metadata{"note": note, "target": target},
	}})
	if err != nil {
		return domain.StockLevel{}, err
	}
	if err := EvaluateLowStock(ctx, tx, branchID, levels); err != nil {
		return domain.StockLevel{}, err
	}
	if _, err := tx.Activity().Insert(ctx, domain.ActivityEntry{
		BranchID: branchID, ActorID: actorID, Action: "inventory.adjust",
		Details: domain.Metadata{"product_id": productID, "delta": delta, "target": target},
	}); err != nil {
		return domain.StockLevel{}, err
	}
	return levels[0], nil
}

// SetLevel sets the absolute quantity of a branch/product pair.
func (s InventoryService) SetLevel(ctx domain.Context, g Gate, role domain.Role, branchID, productID, target int64, source domain.StockSource, note string) (MutationResult, error) {
	if !domain.Can(role, domain.ActionAdjustStock) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not adjust stock")
	}
	if target < 0 {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "target quantity must be >= 0")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		lvl, err := setLevelTx(ctx, tx, g.ActorID, branchID, productID, target, source, note)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"product_id": productID,
			"quantity":   lvl.Quantity,
			"source":     string(lvl.Source),
		}, nil
	})
}

// Clear zeroes a pair's stock via a manual_adjustment movement.
func (s InventoryService) Clear(ctx domain.Context, g Gate, role domain.Role, branchID, productID int64, note string) (MutationResult, error) {
	if !domain.Can(role, domain.ActionAdjustStock) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not adjust stock")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		if _, err := setLevelTx(ctx, tx, g.ActorID, branchID, productID, 0, "", note); err != nil {
			return nil, err
		}
		return map[string]any{"product_id": productID, "quantity": int64(0)}, nil
	})
}

// MovementsFor lists the ledger rows behind one aggregate reference.
func (s InventoryService) MovementsFor(ctx domain.Context, refType string, refID int64) ([]domain.Movement, error) {
	var out []domain.Movement
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Inventory().MovementsByReference(ctx, refType, refID)
		return err
	})
	return out, err
}
