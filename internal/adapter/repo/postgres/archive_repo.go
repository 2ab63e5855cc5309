package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/breadworks/bakeops/internal/domain"
)

// ArchiveRepo moves aged rows into *_archive mirror tables. Every
// ArchiveX call runs inside the caller's transaction: copy with ON
// CONFLICT DO NOTHING, then delete from the hot table, children before
// parents. A crash between copy and delete therefore re-runs cleanly.
type ArchiveRepo struct{ Q Querier }

func (r *ArchiveRepo) Settings(ctx domain.Context, branchID int64) (domain.ArchiveSettings, error) {
	q := `SELECT branch_id, enabled, retention_months, cold_storage_after_months, last_run_at, last_reminder_at, confirmation_phrase
	      FROM archive_settings WHERE branch_id=$1`
	var s domain.ArchiveSettings
	err := r.Q.QueryRow(ctx, q, branchID).Scan(&s.BranchID, &s.Enabled, &s.RetentionMonths,
		&s.ColdStorageAfterMonths, &s.LastRunAt, &s.LastReminderAt, &s.ConfirmationPhrase)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArchiveSettings{}, fmt.Errorf("op=archive.settings: %w", domain.ErrNotFound)
		}
		return domain.ArchiveSettings{}, fmt.Errorf("op=archive.settings: %w", err)
	}
	return s, nil
}

func (r *ArchiveRepo) UpsertSettings(ctx domain.Context, s domain.ArchiveSettings) error {
	q := `INSERT INTO archive_settings (branch_id, enabled, retention_months, cold_storage_after_months, confirmation_phrase)
	      VALUES ($1,$2,$3,$4,$5)
	      ON CONFLICT (branch_id) DO UPDATE SET
	        enabled=EXCLUDED.enabled,
	        retention_months=EXCLUDED.retention_months,
	        cold_storage_after_months=EXCLUDED.cold_storage_after_months,
	        confirmation_phrase=EXCLUDED.confirmation_phrase`
	if _, err := r.Q.Exec(ctx, q, s.BranchID, s.Enabled, s.RetentionMonths, s.ColdStorageAfterMonths, s.ConfirmationPhrase); err != nil {
		return fmt.Errorf("op=archive.upsert_settings: %w", err)
	}
	return nil
}

func (r *ArchiveRepo) SetLastRun(ctx domain.Context, branchID int64, at time.Time) error {
	if _, err := r.Q.Exec(ctx, `UPDATE archive_settings SET last_run_at=$2 WHERE branch_id=$1`, branchID, at); err != nil {
		return fmt.Errorf("op=archive.set_last_run: %w", err)
	}
	return nil
}

func (r *ArchiveRepo) SetLastReminder(ctx domain.Context, branchID int64, at time.Time) error {
	if _, err := r.Q.Exec(ctx, `UPDATE archive_settings SET last_reminder_at=$2 WHERE branch_id=$1`, branchID, at); err != nil {
		return fmt.Errorf("op=archive.set_last_reminder: %w", err)
	}
	return nil
}

// ArchiveBatches moves batches older than cutoff regardless of status,
// items first via the batch_id join, then the batch rows.
func (r *ArchiveRepo) ArchiveBatches(ctx domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	tracer := otel.Tracer("repo.archive")
	ctx, span := tracer.Start(ctx, "archive.Batches")
	defer span.End()
	if _, err := r.Q.Exec(ctx, `
	    INSERT INTO batch_items_archive
	    SELECT bi.* FROM batch_items bi JOIN batches b ON b.id = bi.batch_id
	    WHERE b.branch_id=$1 AND b.created_at < $2
	    ON CONFLICT (id) DO NOTHING`, branchID, cutoff); err != nil {
		return 0, fmt.Errorf("op=archive.batch_items_copy: %w", err)
	}
	if _, err := r.Q.Exec(ctx, `
	    INSERT INTO batches_archive
	    SELECT * FROM batches WHERE branch_id=$1 AND created_at < $2
	    ON CONFLICT (id) DO NOTHING`, branchID, cutoff); err != nil {
		return 0, fmt.Errorf("op=archive.batches_copy: %w", err)
	}
	if _, err := r.Q.Exec(ctx, `
	    DELETE FROM batch_items WHERE batch_id IN
	      (SELECT id FROM batches WHERE branch_id=$1 AND created_at < $2)`, branchID, cutoff); err != nil {
		return 0, fmt.Errorf("op=archive.batch_items_delete: %w", err)
	}
	tag, err := r.Q.Exec(ctx, `DELETE FROM batches WHERE branch_id=$1 AND created_at < $2`, branchID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=archive.batches_delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ArchiveRepo) ArchiveSales(ctx domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	tracer := otel.Tracer("repo.archive")
	ctx, span := tracer.Start(ctx, "archive.Sales")
	defer span.End()
	if _, err := r.Q.Exec(ctx, `
	    INSERT INTO sale_items_archive
	    SELECT si.* FROM sale_items si JOIN sales s ON s.id = si.sale_id
	    WHERE s.branch_id=$1 AND s.sale_date < $2
	    ON CONFLICT (id) DO NOTHING`, branchID, cutoff); err != nil {
		return 0, fmt.Errorf("op=archive.sale_items_copy: %w", err)
	}
	if _, err := r.Q.Exec(ctx, `
	    INSERT INTO sales_archive
	    SELECT * FROM sales WHERE branch_id=$1 AND sale_date < $2
	    ON CONFLICT (id) DO NOTHING`, branchID, cutoff); err != nil {
		return 0, fmt.Errorf("op=archive.sales_copy: %w", err)
	}
	if _, err := r.Q.Exec(ctx, `
	    DELETE FROM sale_items WHERE sale_id IN
	      (SELECT id FROM sales WHERE branch_id=$1 AND sale_date < $2)`, branchID, cutoff); err != nil {
		return 0, fmt.Errorf("op=archive.sale_items_delete: %w", err)
	}
	tag, err := r.Q.Exec(ctx, `DELETE FROM sales WHERE branch_id=$1 AND sale_date < $2`, branchID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=archive.sales_delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ArchiveRepo) ArchiveMovements(ctx domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	if _, err := r.Q.Exec(ctx, `
	    INSERT INTO inventory_movements_archive
	    SELECT * FROM inventory_movements WHERE branch_id=$1 AND created_at < $2
	    ON CONFLICT (id) DO NOTHING`, branchID, cutoff); err != nil {
		return 0, fmt.Errorf("op=archive.movements_copy: %w", err)
	}
	tag, err := r.Q.Exec(ctx, `DELETE FROM inventory_movements WHERE branch_id=$1 AND created_at < $2`, branchID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=archive.movements_delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ArchiveRepo) ArchiveActivity(ctx domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	if _, err := r.Q.Exec(ctx, `
	    INSERT INTO activity_log_archive
	    SELECT * FROM activity_log WHERE branch_id=$1 AND created_at < $2
	    ON CONFLICT (id) DO NOTHING`, branchID, cutoff); err != nil {
		return 0, fmt.Errorf("op=archive.activity_copy: %w", err)
	}
	tag, err := r.Q.Exec(ctx, `DELETE FROM activity_log WHERE branch_id=$1 AND created_at < $2`, branchID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=archive.activity_delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ArchiveRepo) ArchiveExpenses(ctx domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	if _, err := r.Q.Exec(ctx, `
	    INSERT INTO expenses_archive
	    SELECT * FROM expenses WHERE branch_id=$1 AND expense_date < $2
	    ON CONFLICT (id) DO NOTHING`, branchID, cutoff); err != nil {
		return 0, fmt.Errorf("op=archive.expenses_copy: %w", err)
	}
	tag, err := r.Q.Exec(ctx, `DELETE FROM expenses WHERE branch_id=$1 AND expense_date < $2`, branchID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=archive.expenses_delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ArchiveRepo) ArchivePayments(ctx domain.Context, branchID int64, cutoff time.Time) (int64, error) {
	if _, err := r.Q.Exec(ctx, `
	    INSERT INTO staff_payments_archive
	    SELECT * FROM staff_payments WHERE branch_id=$1 AND payment_date < $2
	    ON CONFLICT (id) DO NOTHING`, branchID, cutoff); err != nil {
		return 0, fmt.Errorf("op=archive.payments_copy: %w", err)
	}
	tag, err := r.Q.Exec(ctx, `DELETE FROM staff_payments WHERE branch_id=$1 AND payment_date < $2`, branchID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=archive.payments_delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ArchiveRepo) RecordRun(ctx domain.Context, run domain.ArchiveRun) (int64, error) {
	q := `INSERT INTO archive_runs (branch_id, triggered_by, run_type, status, cutoff_at, details, error_msg, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,now()) RETURNING id`
	var id int64
	err := r.Q.QueryRow(ctx, q, run.BranchID, run.TriggeredBy, run.RunType, run.Status,
		run.CutoffAt, run.Details.JSON(), run.ErrorMsg).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("op=archive.record_run: %w", err)
	}
	return id, nil
}

func (r *ArchiveRepo) ListRuns(ctx domain.Context, branchID int64, limit int) ([]domain.ArchiveRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT id, branch_id, triggered_by, run_type, status, cutoff_at, details, error_msg, created_at
	      FROM archive_runs WHERE branch_id=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Q.Query(ctx, q, branchID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=archive.list_runs: %w", err)
	}
	defer rows.Close()
	var out []domain.ArchiveRun
	for rows.Next() {
		var run domain.ArchiveRun
		var details []byte
		if err := rows.Scan(&run.ID, &run.BranchID, &run.TriggeredBy, &run.RunType, &run.Status,
			&run.CutoffAt, &details, &run.ErrorMsg, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=archive.list_runs_scan: %w", err)
		}
		run.Details = decodeMetadata(details)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=archive.list_runs_rows: %w", err)
	}
	return out, nil
}
