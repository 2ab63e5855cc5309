package postgres

import (
	"fmt"

	"github.com/breadworks/bakeops/internal/domain"
)

// NotificationRepo persists notifications and the alert rules that
// produce them.
type NotificationRepo struct{ Q Querier }

func (r *NotificationRepo) Insert(ctx domain.Context, n domain.Notification) (int64, error) {
	q := `INSERT INTO notifications (recipient_actor_id, branch_id, title, message, type, is_read, created_at)
	      VALUES ($1,$2,$3,$4,$5,false,now()) RETURNING id`
	var id int64
	err := r.Q.QueryRow(ctx, q, n.RecipientActorID, n.BranchID, n.Title, n.Message, n.Type).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("op=notification.insert: %w", err)
	}
	return id, nil
}

func (r *NotificationRepo) ListByRecipient(ctx domain.Context, actorID int64, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT id, recipient_actor_id, branch_id, title, message, type, is_read, created_at
	      FROM notifications WHERE recipient_actor_id=$1`
	if unreadOnly {
		q += ` AND NOT is_read`
	}
	q += ` ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Q.Query(ctx, q, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=notification.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.RecipientActorID, &n.BranchID, &n.Title, &n.Message,
			&n.Type, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=notification.list_scan: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=notification.list_rows: %w", err)
	}
	return out, nil
}

// MarkRead flips the read flag; scoped by recipient so one actor cannot
// acknowledge another's notifications.
func (r *NotificationRepo) MarkRead(ctx domain.Context, id, actorID int64) error {
	q := `UPDATE notifications SET is_read=true WHERE id=$1 AND recipient_actor_id=$2`
	tag, err := r.Q.Exec(ctx, q, id, actorID)
	if err != nil {
		return fmt.Errorf("op=notification.mark_read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=notification.mark_read: %w", domain.ErrNotFound)
	}
	return nil
}

// RulesByEvent returns enabled rules matching the event for this branch,
// including global rules (NULL branch_id).
func (r *NotificationRepo) RulesByEvent(ctx domain.Context, branchID int64, eventType string) ([]domain.AlertRule, error) {
	q := `SELECT id, branch_id, event_type, threshold, enabled FROM alert_rules
	      WHERE enabled AND event_type=$2 AND (branch_id IS NULL OR branch_id=$1) ORDER BY id`
	rows, err := r.Q.Query(ctx, q, branchID, eventType)
	if err != nil {
		return nil, fmt.Errorf("op=notification.rules_by_event: %w", err)
	}
	defer rows.Close()
	var out []domain.AlertRule
	for rows.Next() {
		var ar domain.AlertRule
		if err := rows.Scan(&ar.ID, &ar.BranchID, &ar.EventType, &ar.Threshold, &ar.Enabled); err != nil {
			return nil, fmt.Errorf("op=notification.rules_scan: %w", err)
		}
		out = append(out, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=notification.rules_rows: %w", err)
	}
	return out, nil
}

func (r *NotificationRepo) CreateRule(ctx domain.Context, ar *domain.AlertRule) (int64, error) {
	q := `INSERT INTO alert_rules (branch_id, event_type, threshold, enabled) VALUES ($1,$2,$3,$4) RETURNING id`
	if err := r.Q.QueryRow(ctx, q, ar.BranchID, ar.EventType, ar.Threshold, ar.Enabled).Scan(&ar.ID); err != nil {
		return 0, fmt.Errorf("op=notification.create_rule: %w", err)
	}
	return ar.ID, nil
}

func (r *NotificationRepo) UpdateRule(ctx domain.Context, ar domain.AlertRule) error {
	q := `UPDATE alert_rules SET branch_id=$2, event_type=$3, threshold=$4, enabled=$5 WHERE id=$1`
	tag, err := r.Q.Exec(ctx, q, ar.ID, ar.BranchID, ar.EventType, ar.Threshold, ar.Enabled)
	if err != nil {
		return fmt.Errorf("op=notification.update_rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=notification.update_rule: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *NotificationRepo) DeleteRule(ctx domain.Context, id int64) error {
	tag, err := r.Q.Exec(ctx, `DELETE FROM alert_rules WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=notification.delete_rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=notification.delete_rule: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *NotificationRepo) ListRules(ctx domain.Context, branchID int64) ([]domain.AlertRule, error) {
	q := `SELECT id, branch_id, event_type, threshold, enabled FROM alert_rules
	      WHERE branch_id IS NULL OR branch_id=$1 ORDER BY id`
	rows, err := r.Q.Query(ctx, q, branchID)
	if err != nil {
		return nil, fmt.Errorf("op=notification.list_rules: %w", err)
	}
	defer rows.Close()
	var out []domain.AlertRule
	for rows.Next() {
		var ar domain.AlertRule
		if err := rows.Scan(&ar.ID, &ar.BranchID, &ar.EventType, &ar.Threshold, &ar.Enabled); err != nil {
			return nil, fmt.Errorf("op=notification.list_rules_scan: %w", err)
		}
		out = append(out, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=notification.list_rules_rows: %w", err)
	}
	return out, nil
}
