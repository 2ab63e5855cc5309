package usecase

import (
	"time"

	"github.com/breadworks/bakeops/internal/domain"
)

// FinanceService manages per-branch expenses and staff payments.
type FinanceService struct {
	Store domain.Store
}

// NewFinanceService constructs a FinanceService.
func NewFinanceService(store domain.Store) FinanceService { return FinanceService{Store: store} }

// CreateExpense records a branch expense.
func (s FinanceService) CreateExpense(ctx domain.Context, g Gate, role domain.Role, e *domain.Expense) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageExpenses) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage expenses")
	}
	if e.Amount <= 0 {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "amount must be > 0")
	}
	e.Amount = Round2(e.Amount)
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		id, err := tx.Finance().CreateExpense(ctx, e)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil
	})
}

// UpdateExpense replaces an expense row.
func (s FinanceService) UpdateExpense(ctx domain.Context, g Gate, role domain.Role, e domain.Expense) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageExpenses) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage expenses")
	}
	if e.Amount <= 0 {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "amount must be > 0")
	}
	e.Amount = Round2(e.Amount)
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		if err := tx.Finance().UpdateExpense(ctx, e); err != nil {
			return nil, err
		}
		return map[string]any{"id": e.ID}, nil
	})
}

// DeleteExpense removes an expense row.
func (s FinanceService) DeleteExpense(ctx domain.Context, g Gate, role domain.Role, id int64) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageExpenses) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage expenses")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		return nil, tx.Finance().DeleteExpense(ctx, id)
	})
}

// ListExpenses returns expenses for a branch within [from, to).
func (s FinanceService) ListExpenses(ctx domain.Context, branchID int64, from, to time.Time) ([]domain.Expense, error) {
	var out []domain.Expense
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Finance().ListExpenses(ctx, branchID, from, to)
		return err
	})
	return out, err
}

// CreatePayment records a payroll payment against a staff profile.
func (s FinanceService) CreatePayment(ctx domain.Context, g Gate, role domain.Role, p *domain.StaffPayment) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManagePayroll) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage payroll")
	}
	if p.Amount <= 0 {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "amount must be > 0")
	}
	p.Amount = Round2(p.Amount)
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		if _, err := tx.Staff().Get(ctx, p.StaffProfileID); err != nil {
			return nil, err
		}
		id, err := tx.Finance().CreatePayment(ctx, p)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil
	})
}

// DeletePayment removes a payroll row.
func (s FinanceService) DeletePayment(ctx domain.Context, g Gate, role domain.Role, id int64) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManagePayroll) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage payroll")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		return nil, tx.Finance().DeletePayment(ctx, id)
	})
}

// ListPayments returns payroll rows for a branch within [from, to).
func (s FinanceService) ListPayments(ctx domain.Context, branchID int64, from, to time.Time) ([]domain.StaffPayment, error) {
	var out []domain.StaffPayment
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Finance().ListPayments(ctx, branchID, from, to)
		return err
	})
	return out, err
}
