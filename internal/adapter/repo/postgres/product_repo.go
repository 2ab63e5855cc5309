package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/breadworks/bakeops/internal/domain"
)

// ProductRepo persists the global catalog.
type ProductRepo struct{ Q Querier }

const productCols = `id, name, category_id, price, cost, unit, is_active, created_at`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Price, &p.Cost, &p.Unit, &p.IsActive, &p.CreatedAt)
	return p, err
}

func (r *ProductRepo) Create(ctx domain.Context, p *domain.Product) (int64, error) {
	tracer := otel.Tracer("repo.products")
	ctx, span := tracer.Start(ctx, "products.Create")
	defer span.End()
	q := `INSERT INTO products (name, category_id, price, cost, unit, is_active, created_at)
	      VALUES ($1, $2, $3, $4, $5, true, now()) RETURNING id, created_at`
	if err := r.Q.QueryRow(ctx, q, p.Name, p.CategoryID, p.Price, p.Cost, p.Unit).Scan(&p.ID, &p.CreatedAt); err != nil {
		return 0, fmt.Errorf("op=product.create: %w", err)
	}
	p.IsActive = true
	return p.ID, nil
}

func (r *ProductRepo) Get(ctx domain.Context, id int64) (domain.Product, error) {
	p, err := scanProduct(r.Q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("op=product.get: %w", domain.ErrNotFound)
		}
		return domain.Product{}, fmt.Errorf("op=product.get: %w", err)
	}
	return p, nil
}

// GetActive loads a product and fails with PRODUCT_UNAVAILABLE when it is
// missing or deactivated.
func (r *ProductRepo) GetActive(ctx domain.Context, id int64) (domain.Product, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Product{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeProductUnavailable,
				fmt.Sprintf("product %d is not available", id)).
				WithDetails(map[string]any{"product_id": id})
		}
		return domain.Product{}, err
	}
	if !p.IsActive {
		return domain.Product{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeProductUnavailable,
			fmt.Sprintf("product %d is not available", id)).
			WithDetails(map[string]any{"product_id": id})
	}
	return p, nil
}

func (r *ProductRepo) List(ctx domain.Context, activeOnly bool) ([]domain.Product, error) {
	q := `SELECT ` + productCols + ` FROM products`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY id`
	rows, err := r.Q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=product.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Price, &p.Cost, &p.Unit, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=product.list_scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=product.list_rows: %w", err)
	}
	return out, nil
}

func (r *ProductRepo) Update(ctx domain.Context, p domain.Product) error {
	q := `UPDATE products SET name=$2, category_id=$3, price=$4, cost=$5, unit=$6 WHERE id=$1`
	tag, err := r.Q.Exec(ctx, q, p.ID, p.Name, p.CategoryID, p.Price, p.Cost, p.Unit)
	if err != nil {
		return fmt.Errorf("op=product.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=product.update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *ProductRepo) SetActive(ctx domain.Context, id int64, active bool) error {
	tag, err := r.Q.Exec(ctx, `UPDATE products SET is_active=$2 WHERE id=$1`, id, active)
	if err != nil {
		return fmt.Errorf("op=product.set_active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=product.set_active: %w", domain.ErrNotFound)
	}
	return nil
}
