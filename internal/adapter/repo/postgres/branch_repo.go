package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/breadworks/bakeops/internal/domain"
)

// BranchRepo persists branches (locations).
type BranchRepo struct{ Q Querier }

func (r *BranchRepo) Create(ctx domain.Context, b *domain.Branch) (int64, error) {
	q := `INSERT INTO branches (name, address, phone, is_active, created_at)
	      VALUES ($1, $2, $3, true, now()) RETURNING id, created_at`
	if err := r.Q.QueryRow(ctx, q, b.Name, b.Address, b.Phone).Scan(&b.ID, &b.CreatedAt); err != nil {
		return 0, fmt.Errorf("op=branch.create: %w", err)
	}
	b.IsActive = true
	return b.ID, nil
}

func (r *BranchRepo) Get(ctx domain.Context, id int64) (domain.Branch, error) {
	q := `SELECT id, name, address, phone, is_active, created_at FROM branches WHERE id=$1`
	var b domain.Branch
	if err := r.Q.QueryRow(ctx, q, id).Scan(&b.ID, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Branch{}, fmt.Errorf("op=branch.get: %w", domain.ErrNotFound)
		}
		return domain.Branch{}, fmt.Errorf("op=branch.get: %w", err)
	}
	return b, nil
}

func (r *BranchRepo) List(ctx domain.Context, activeOnly bool) ([]domain.Branch, error) {
	q := `SELECT id, name, address, phone, is_active, created_at FROM branches`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY id`
	rows, err := r.Q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=branch.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Branch
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=branch.list_scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=branch.list_rows: %w", err)
	}
	return out, nil
}

func (r *BranchRepo) Update(ctx domain.Context, b domain.Branch) error {
	q := `UPDATE branches SET name=$2, address=$3, phone=$4 WHERE id=$1`
	tag, err := r.Q.Exec(ctx, q, b.ID, b.Name, b.Address, b.Phone)
	if err != nil {
		return fmt.Errorf("op=branch.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=branch.update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *BranchRepo) SetActive(ctx domain.Context, id int64, active bool) error {
	q := `UPDATE branches SET is_active=$2 WHERE id=$1`
	tag, err := r.Q.Exec(ctx, q, id, active)
	if err != nil {
		return fmt.Errorf("op=branch.set_active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=branch.set_active: %w", domain.ErrNotFound)
	}
	return nil
}
