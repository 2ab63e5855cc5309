package usecase

import (
	"fmt"

	"github.com/breadworks/bakeops/internal/domain"
)

// NotifyService manages notifications and alert rules, and performs the
// synchronous in-transaction rule evaluation that sale and ledger writes
// call into. If a notification insert fails, the surrounding domain write
// fails with it.
type NotifyService struct {
	Store domain.Store
}

// NewNotifyService constructs a NotifyService.
func NewNotifyService(store domain.Store) NotifyService { return NotifyService{Store: store} }

// notifyBranchManagers inserts one notification per active admin/manager
// of the branch.
func notifyBranchManagers(ctx domain.Context, tx domain.StoreTx, branchID int64, title, message, typ string) error {
	recipients, err := tx.Actors().BranchStaff(ctx, branchID, []domain.Role{domain.RoleAdmin, domain.RoleManager})
	if err != nil {
		return err
	}
	for _, a := range recipients {
		n := domain.Notification{
			RecipientActorID: a.ID,
			BranchID:         branchID,
			Title:            title,
			Message:          message,
			Type:             typ,
		}
		if _, err := tx.Notifications().Insert(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateHighSale fires enabled high_sale rules whose threshold the sale
// total crosses.
func EvaluateHighSale(ctx domain.Context, tx domain.StoreTx, branchID int64, total float64) error {
	rules, err := tx.Notifications().RulesByEvent(ctx, branchID, domain.EventHighSale)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if total < r.Threshold {
			continue
		}
		msg := fmt.Sprintf("A sale of %.2f exceeded the alert threshold of %.2f.", total, r.Threshold)
		if err := notifyBranchManagers(ctx, tx, branchID, "High sale recorded", msg, domain.EventHighSale); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateLowStock fires enabled low_stock rules for every post-movement
// level at or below the rule threshold.
func EvaluateLowStock(ctx domain.Context, tx domain.StoreTx, branchID int64, levels []domain.StockLevel) error {
	rules, err := tx.Notifications().RulesByEvent(ctx, branchID, domain.EventLowStock)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	for _, lvl := range levels {
		for _, r := range rules {
			if float64(lvl.Quantity) > r.Threshold {
				continue
			}
			msg := fmt.Sprintf("Product %d is down to %d units.", lvl.ProductID, lvl.Quantity)
			if err := notifyBranchManagers(ctx, tx, branchID, "Low stock", msg, domain.EventLowStock); err != nil {
				return err
			}
		}
	}
	return nil
}

// List returns the caller's notifications, newest first.
func (s NotifyService) List(ctx domain.Context, actorID int64, unreadOnly bool, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Notifications().ListByRecipient(ctx, actorID, unreadOnly, limit)
		return err
	})
	return out, err
}

// MarkRead acknowledges one notification owned by the gate's actor.
func (s NotifyService) MarkRead(ctx domain.Context, g Gate, id int64) (MutationResult, error) {
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		if err := tx.Notifications().MarkRead(ctx, id, g.ActorID); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "read": true}, nil
	})
}

// CreateRule adds an alert rule. Admin only; enforced by the handler via
// authz, revalidated here on event type.
func (s NotifyService) CreateRule(ctx domain.Context, g Gate, r *domain.AlertRule) (MutationResult, error) {
	if err := validateRule(*r); err != nil {
		return MutationResult{}, err
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		id, err := tx.Notifications().CreateRule(ctx, r)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil
	})
}

// UpdateRule replaces an alert rule.
func (s NotifyService) UpdateRule(ctx domain.Context, g Gate, r domain.AlertRule) (MutationResult, error) {
	if err := validateRule(r); err != nil {
		return MutationResult{}, err
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		if err := tx.Notifications().UpdateRule(ctx, r); err != nil {
			return nil, err
		}
		return map[string]any{"id": r.ID}, nil
	})
}

// DeleteRule removes an alert rule.
func (s NotifyService) DeleteRule(ctx domain.Context, g Gate, id int64) (MutationResult, error) {
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		return nil, tx.Notifications().DeleteRule(ctx, id)
	})
}

// ListRules returns rules visible to the branch (global rules included).
func (s NotifyService) ListRules(ctx domain.Context, branchID int64) ([]domain.AlertRule, error) {
	var out []domain.AlertRule
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Notifications().ListRules(ctx, branchID)
		return err
	})
	return out, err
}

func validateRule(r domain.AlertRule) error {
	switch r.EventType {
	case domain.EventHighSale, domain.EventLowStock:
		return nil
	}
	return domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
		fmt.Sprintf("unknown alert event type %q", r.EventType))
}
