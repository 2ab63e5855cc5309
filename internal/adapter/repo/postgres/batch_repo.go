package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/breadworks/bakeops/internal/domain"
)

// BatchRepo persists production batches and their items.
type BatchRepo struct{ Q Querier }

const batchCols = `id, branch_id, creator_actor_id, batch_date, status, notes, is_offline, synced_by_actor_id, synced_at, created_at`

func (r *BatchRepo) Create(ctx domain.Context, b *domain.Batch) (int64, error) {
	tracer := otel.Tracer("repo.batches")
	ctx, span := tracer.Start(ctx, "batches.Create")
	defer span.End()
	q := `INSERT INTO batches (branch_id, creator_actor_id, batch_date, status, notes, is_offline, synced_by_actor_id, synced_at, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now()) RETURNING id, created_at`
	err := r.Q.QueryRow(ctx, q,
		b.BranchID, b.CreatorActorID, b.BatchDate, b.Status, b.Notes,
		b.IsOffline, b.SyncedByActorID, b.SyncedAt).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("op=batch.create: %w", err)
	}
	return b.ID, nil
}

func (r *BatchRepo) Get(ctx domain.Context, id int64) (domain.Batch, error) {
	var b domain.Batch
	err := r.Q.QueryRow(ctx, `SELECT `+batchCols+` FROM batches WHERE id=$1`, id).Scan(
		&b.ID, &b.BranchID, &b.CreatorActorID, &b.BatchDate, &b.Status, &b.Notes,
		&b.IsOffline, &b.SyncedByActorID, &b.SyncedAt, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Batch{}, fmt.Errorf("op=batch.get: %w", domain.ErrNotFound)
		}
		return domain.Batch{}, fmt.Errorf("op=batch.get: %w", err)
	}
	return b, nil
}

func (r *BatchRepo) Items(ctx domain.Context, batchID int64) ([]domain.BatchItem, error) {
	q := `SELECT id, batch_id, product_id, quantity, source FROM batch_items WHERE batch_id=$1 ORDER BY id`
	rows, err := r.Q.Query(ctx, q, batchID)
	if err != nil {
		return nil, fmt.Errorf("op=batch.items: %w", err)
	}
	defer rows.Close()
	var out []domain.BatchItem
	for rows.Next() {
		var it domain.BatchItem
		if err := rows.Scan(&it.ID, &it.BatchID, &it.ProductID, &it.Quantity, &it.Source); err != nil {
			return nil, fmt.Errorf("op=batch.items_scan: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=batch.items_rows: %w", err)
	}
	return out, nil
}

func (r *BatchRepo) InsertItems(ctx domain.Context, batchID int64, items []domain.BatchItem) error {
	q := `INSERT INTO batch_items (batch_id, product_id, quantity, source) VALUES ($1,$2,$3,$4)`
	for _, it := range items {
		if _, err := r.Q.Exec(ctx, q, batchID, it.ProductID, it.Quantity, it.Source); err != nil {
			if isUniqueViolation(err, "batch_items") {
				return fmt.Errorf("op=batch.insert_items: duplicate (product, source) line: %w", domain.ErrConflict)
			}
			return fmt.Errorf("op=batch.insert_items: %w", err)
		}
	}
	return nil
}

// ReplaceItems swaps the item set of a batch in place (used by edit).
func (r *BatchRepo) ReplaceItems(ctx domain.Context, batchID int64, items []domain.BatchItem) error {
	if _, err := r.Q.Exec(ctx, `DELETE FROM batch_items WHERE batch_id=$1`, batchID); err != nil {
		return fmt.Errorf("op=batch.replace_items: %w", err)
	}
	return r.InsertItems(ctx, batchID, items)
}

func (r *BatchRepo) UpdateStatus(ctx domain.Context, id int64, status domain.BatchStatus) error {
	tag, err := r.Q.Exec(ctx, `UPDATE batches SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("op=batch.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=batch.update_status: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *BatchRepo) ListByBranch(ctx domain.Context, branchID int64, limit, offset int) ([]domain.Batch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT ` + batchCols + ` FROM batches WHERE branch_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.Q.Query(ctx, q, branchID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=batch.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Batch
	for rows.Next() {
		var b domain.Batch
		if err := rows.Scan(&b.ID, &b.BranchID, &b.CreatorActorID, &b.BatchDate, &b.Status, &b.Notes,
			&b.IsOffline, &b.SyncedByActorID, &b.SyncedAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=batch.list_scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=batch.list_rows: %w", err)
	}
	return out, nil
}
