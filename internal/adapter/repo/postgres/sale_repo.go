package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/breadworks/bakeops/internal/domain"
)

// SaleRepo persists sales, their items and the per-day receipt sequence.
type SaleRepo struct{ Q Querier }

const saleCols = `id, branch_id, cashier_actor_id, total_amount, payment_method, is_offline, is_voided, sale_date, receipt_number`

// Create inserts the sale. A unique violation on receipt_number surfaces
// as RECEIPT_COLLISION so the caller can retry with the next sequence.
func (r *SaleRepo) Create(ctx domain.Context, s *domain.Sale) (int64, error) {
	tracer := otel.Tracer("repo.sales")
	ctx, span := tracer.Start(ctx, "sales.Create")
	defer span.End()
	q := `INSERT INTO sales (branch_id, cashier_actor_id, total_amount, payment_method, is_offline, is_voided, sale_date, receipt_number)
	      VALUES ($1,$2,$3,$4,$5,false,$6,$7) RETURNING id`
	err := r.Q.QueryRow(ctx, q,
		s.BranchID, s.CashierID, s.TotalAmount, s.PaymentMethod, s.IsOffline, s.SaleDate, s.ReceiptNumber).Scan(&s.ID)
	if err != nil {
		if isUniqueViolation(err, "receipt") {
			return 0, domain.Coded(domain.ErrConflict, domain.CodeReceiptCollision,
				fmt.Sprintf("receipt number %s already issued", s.ReceiptNumber))
		}
		return 0, fmt.Errorf("op=sale.create: %w", err)
	}
	return s.ID, nil
}

func (r *SaleRepo) InsertItems(ctx domain.Context, saleID int64, items []domain.SaleItem) error {
	q := `INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, subtotal) VALUES ($1,$2,$3,$4,$5)`
	for _, it := range items {
		if _, err := r.Q.Exec(ctx, q, saleID, it.ProductID, it.Quantity, it.UnitPrice, it.Subtotal); err != nil {
			return fmt.Errorf("op=sale.insert_items: %w", err)
		}
	}
	return nil
}

func (r *SaleRepo) Get(ctx domain.Context, id int64) (domain.Sale, error) {
	var s domain.Sale
	err := r.Q.QueryRow(ctx, `SELECT `+saleCols+` FROM sales WHERE id=$1`, id).Scan(
		&s.ID, &s.BranchID, &s.CashierID, &s.TotalAmount, &s.PaymentMethod,
		&s.IsOffline, &s.IsVoided, &s.SaleDate, &s.ReceiptNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Sale{}, fmt.Errorf("op=sale.get: %w", domain.ErrNotFound)
		}
		return domain.Sale{}, fmt.Errorf("op=sale.get: %w", err)
	}
	return s, nil
}

func (r *SaleRepo) ItemsBySale(ctx domain.Context, saleID int64) ([]domain.SaleItem, error) {
	q := `SELECT id, sale_id, product_id, quantity, unit_price, subtotal FROM sale_items WHERE sale_id=$1 ORDER BY id`
	rows, err := r.Q.Query(ctx, q, saleID)
	if err != nil {
		return nil, fmt.Errorf("op=sale.items: %w", err)
	}
	defer rows.Close()
	var out []domain.SaleItem
	for rows.Next() {
		var it domain.SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("op=sale.items_scan: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=sale.items_rows: %w", err)
	}
	return out, nil
}

// MaxReceiptSeq returns the highest per-day sequence issued for the given
// YYYYMMDD token, 0 when none. Receipt format: R + YYYYMMDD + 6 digits.
func (r *SaleRepo) MaxReceiptSeq(ctx domain.Context, day string) (int, error) {
	q := `SELECT COALESCE(MAX(substring(receipt_number from 10)::int), 0)
	      FROM sales WHERE receipt_number LIKE 'R' || $1 || '%'`
	var seq int
	if err := r.Q.QueryRow(ctx, q, day).Scan(&seq); err != nil {
		return 0, fmt.Errorf("op=sale.max_receipt_seq: %w", err)
	}
	return seq, nil
}

func (r *SaleRepo) MarkVoided(ctx domain.Context, id int64) error {
	tag, err := r.Q.Exec(ctx, `UPDATE sales SET is_voided=true WHERE id=$1 AND NOT is_voided`, id)
	if err != nil {
		return fmt.Errorf("op=sale.mark_voided: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=sale.mark_voided: %w", domain.ErrConflict)
	}
	return nil
}

func (r *SaleRepo) ListByBranch(ctx domain.Context, branchID int64, limit, offset int) ([]domain.Sale, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT ` + saleCols + ` FROM sales WHERE branch_id=$1 ORDER BY sale_date DESC LIMIT $2 OFFSET $3`
	rows, err := r.Q.Query(ctx, q, branchID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=sale.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Sale
	for rows.Next() {
		var s domain.Sale
		if err := rows.Scan(&s.ID, &s.BranchID, &s.CashierID, &s.TotalAmount, &s.PaymentMethod,
			&s.IsOffline, &s.IsVoided, &s.SaleDate, &s.ReceiptNumber); err != nil {
			return nil, fmt.Errorf("op=sale.list_scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=sale.list_rows: %w", err)
	}
	return out, nil
}
