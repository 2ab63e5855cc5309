package postgres

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/breadworks/bakeops/internal/domain"
)

// InventoryRepo is the transactional inventory ledger. Stock rows are
// never written outside ApplyMovements; the ledger's appended order is the
// system's truth and stock_levels is the derived sum.
type InventoryRepo struct{ Q Querier }

type stockPair struct{ branchID, productID int64 }

// ApplyMovements validates, appends and upserts stock for all movements
// in one shot. Affected (branch, product) rows are locked FOR UPDATE in
// sorted pair order so concurrent writers on overlapping products cannot
// deadlock. Negative resulting stock fails with INSUFFICIENT_STOCK.
func (r *InventoryRepo) ApplyMovements(ctx domain.Context, movements []domain.Movement) ([]domain.StockLevel, error) {
	tracer := otel.Tracer("repo.inventory")
	ctx, span := tracer.Start(ctx, "inventory.ApplyMovements")
	defer span.End()
	span.SetAttributes(attribute.Int("movements", len(movements)))

	if len(movements) == 0 {
		return nil, fmt.Errorf("op=inventory.apply: %w: no movements", domain.ErrInvalidArgument)
	}

	sums := make(map[stockPair]int64)
	lastSource := make(map[stockPair]domain.StockSource)
	for _, m := range movements {
		if m.QuantityChange == 0 {
			return nil, fmt.Errorf("op=inventory.apply: %w: zero quantity_change for product %d", domain.ErrInvalidArgument, m.ProductID)
		}
		p := stockPair{m.BranchID, m.ProductID}
		sums[p] += m.QuantityChange
		lastSource[p] = m.Source
	}

	pairs := make([]stockPair, 0, len(sums))
	for p := range sums {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].branchID != pairs[j].branchID {
			return pairs[i].branchID < pairs[j].branchID
		}
		return pairs[i].productID < pairs[j].productID
	})

	levels := make([]domain.StockLevel, 0, len(pairs))
	for _, p := range pairs {
		// Seed the row so FOR UPDATE has something to lock on first touch.
		seed := `INSERT INTO stock_levels (branch_id, product_id, quantity, source, last_updated)
		         VALUES ($1, $2, 0, $3, now())
		         ON CONFLICT (branch_id, product_id) DO NOTHING`
		if _, err := r.Q.Exec(ctx, seed, p.branchID, p.productID, lastSource[p]); err != nil {
			return nil, fmt.Errorf("op=inventory.seed_stock: %w", err)
		}
		var current int64
		lock := `SELECT quantity FROM stock_levels WHERE branch_id=$1 AND product_id=$2 FOR UPDATE`
		if err := r.Q.QueryRow(ctx, lock, p.branchID, p.productID).Scan(&current); err != nil {
			return nil, fmt.Errorf("op=inventory.lock_stock: %w", err)
		}
		next := current + sums[p]
		if next < 0 {
			return nil, domain.InsufficientStock(p.productID, current, -sums[p])
		}
		upd := `UPDATE stock_levels SET quantity=$3, source=$4, last_updated=now()
		        WHERE branch_id=$1 AND product_id=$2`
		if _, err := r.Q.Exec(ctx, upd, p.branchID, p.productID, next, lastSource[p]); err != nil {
			return nil, fmt.Errorf("op=inventory.update_stock: %w", err)
		}
		levels = append(levels, domain.StockLevel{
			BranchID: p.branchID, ProductID: p.productID,
			Quantity: next, Source: lastSource[p],
		})
	}

	ins := `INSERT INTO inventory_movements
	        (branch_id, product_id, movement_type, quantity_change, source, reference_type, reference_id, actor_id, metadata, created_at)
	        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())`
	for _, m := range movements {
		if _, err := r.Q.Exec(ctx, ins,
			m.BranchID, m.ProductID, m.MovementType, m.QuantityChange, m.Source,
			m.ReferenceType, m.ReferenceID, m.ActorID, m.Metadata.JSON()); err != nil {
			return nil, fmt.Errorf("op=inventory.append_movement: %w", err)
		}
	}
	return levels, nil
}

// StockByBranch lists current stock for a branch ordered by product.
func (r *InventoryRepo) StockByBranch(ctx domain.Context, branchID int64) ([]domain.StockLevel, error) {
	tracer := otel.Tracer("repo.inventory")
	ctx, span := tracer.Start(ctx, "inventory.StockByBranch")
	defer span.End()
	q := `SELECT branch_id, product_id, quantity, source, last_updated
	      FROM stock_levels WHERE branch_id=$1 ORDER BY product_id`
	rows, err := r.Q.Query(ctx, q, branchID)
	if err != nil {
		return nil, fmt.Errorf("op=inventory.stock_by_branch: %w", err)
	}
	defer rows.Close()
	var out []domain.StockLevel
	for rows.Next() {
		var s domain.StockLevel
		if err := rows.Scan(&s.BranchID, &s.ProductID, &s.Quantity, &s.Source, &s.LastUpdated); err != nil {
			return nil, fmt.Errorf("op=inventory.stock_scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=inventory.stock_rows: %w", err)
	}
	return out, nil
}

// Stock returns the level for one (branch, product) pair.
func (r *InventoryRepo) Stock(ctx domain.Context, branchID, productID int64) (domain.StockLevel, bool, error) {
	q := `SELECT branch_id, product_id, quantity, source, last_updated
	      FROM stock_levels WHERE branch_id=$1 AND product_id=$2`
	var s domain.StockLevel
	err := r.Q.QueryRow(ctx, q, branchID, productID).Scan(&s.BranchID, &s.ProductID, &s.Quantity, &s.Source, &s.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StockLevel{}, false, nil
		}
		return domain.StockLevel{}, false, fmt.Errorf("op=inventory.stock: %w", err)
	}
	return s, true, nil
}

// MovementsByReference lists ledger rows for one aggregate reference in
// append order.
func (r *InventoryRepo) MovementsByReference(ctx domain.Context, refType string, refID int64) ([]domain.Movement, error) {
	q := `SELECT id, branch_id, product_id, movement_type, quantity_change, source,
	             reference_type, reference_id, actor_id, created_at
	      FROM inventory_movements WHERE reference_type=$1 AND reference_id=$2 ORDER BY id`
	rows, err := r.Q.Query(ctx, q, refType, refID)
	if err != nil {
		return nil, fmt.Errorf("op=inventory.movements_by_ref: %w", err)
	}
	defer rows.Close()
	var out []domain.Movement
	for rows.Next() {
		var m domain.Movement
		if err := rows.Scan(&m.ID, &m.BranchID, &m.ProductID, &m.MovementType, &m.QuantityChange,
			&m.Source, &m.ReferenceType, &m.ReferenceID, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=inventory.movements_scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=inventory.movements_rows: %w", err)
	}
	return out, nil
}
