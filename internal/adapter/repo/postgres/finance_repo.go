package postgres

import (
	"fmt"
	"time"

	"github.com/breadworks/bakeops/internal/domain"
)

// FinanceRepo persists expenses and staff payments.
type FinanceRepo struct{ Q Querier }

func (r *FinanceRepo) CreateExpense(ctx domain.Context, e *domain.Expense) (int64, error) {
	q := `INSERT INTO expenses (branch_id, amount, expense_date, category, notes, created_by, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,now()) RETURNING id, created_at`
	err := r.Q.QueryRow(ctx, q, e.BranchID, e.Amount, e.Date, e.Category, e.Notes, e.CreatedBy).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("op=finance.create_expense: %w", err)
	}
	return e.ID, nil
}

func (r *FinanceRepo) UpdateExpense(ctx domain.Context, e domain.Expense) error {
	q := `UPDATE expenses SET amount=$2, expense_date=$3, category=$4, notes=$5 WHERE id=$1`
	tag, err := r.Q.Exec(ctx, q, e.ID, e.Amount, e.Date, e.Category, e.Notes)
	if err != nil {
		return fmt.Errorf("op=finance.update_expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=finance.update_expense: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *FinanceRepo) DeleteExpense(ctx domain.Context, id int64) error {
	tag, err := r.Q.Exec(ctx, `DELETE FROM expenses WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=finance.delete_expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=finance.delete_expense: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *FinanceRepo) ListExpenses(ctx domain.Context, branchID int64, from, to time.Time) ([]domain.Expense, error) {
	q := `SELECT id, branch_id, amount, expense_date, category, notes, created_by, created_at
	      FROM expenses WHERE branch_id=$1 AND expense_date >= $2 AND expense_date < $3 ORDER BY expense_date DESC, id DESC`
	rows, err := r.Q.Query(ctx, q, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("op=finance.list_expenses: %w", err)
	}
	defer rows.Close()
	var out []domain.Expense
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.BranchID, &e.Amount, &e.Date, &e.Category, &e.Notes, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=finance.list_expenses_scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=finance.list_expenses_rows: %w", err)
	}
	return out, nil
}

func (r *FinanceRepo) CreatePayment(ctx domain.Context, p *domain.StaffPayment) (int64, error) {
	q := `INSERT INTO staff_payments (branch_id, staff_profile_id, amount, payment_date, payment_type, notes, created_by, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,now()) RETURNING id, created_at`
	err := r.Q.QueryRow(ctx, q, p.BranchID, p.StaffProfileID, p.Amount, p.Date, p.PaymentType, p.Notes, p.CreatedBy).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("op=finance.create_payment: %w", err)
	}
	return p.ID, nil
}

func (r *FinanceRepo) DeletePayment(ctx domain.Context, id int64) error {
	tag, err := r.Q.Exec(ctx, `DELETE FROM staff_payments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=finance.delete_payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=finance.delete_payment: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *FinanceRepo) ListPayments(ctx domain.Context, branchID int64, from, to time.Time) ([]domain.StaffPayment, error) {
	q := `SELECT id, branch_id, staff_profile_id, amount, payment_date, payment_type, notes, created_by, created_at
	      FROM staff_payments WHERE branch_id=$1 AND payment_date >= $2 AND payment_date < $3 ORDER BY payment_date DESC, id DESC`
	rows, err := r.Q.Query(ctx, q, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("op=finance.list_payments: %w", err)
	}
	defer rows.Close()
	var out []domain.StaffPayment
	for rows.Next() {
		var p domain.StaffPayment
		if err := rows.Scan(&p.ID, &p.BranchID, &p.StaffProfileID, &p.Amount, &p.Date, &p.PaymentType,
			&p.Notes, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=finance.list_payments_scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=finance.list_payments_rows: %w", err)
	}
	return out, nil
}
