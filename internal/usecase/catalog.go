package usecase

import (
	"github.com/breadworks/bakeops/internal/domain"
)

// CatalogService manages the global product catalog and branches. Both use
// soft deactivation; rows referenced by history are never deleted.
type CatalogService struct {
	Store domain.Store
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(store domain.Store) CatalogService { return CatalogService{Store: store} }

// CreateProduct adds a catalog entry.
func (s CatalogService) CreateProduct(ctx domain.Context, g Gate, role domain.Role, p *domain.Product) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageCatalog) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage the catalog")
	}
	if p.Name == "" || p.Price < 0 {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "name and a non-negative price are required")
	}
	p.Price = Round2(p.Price)
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		id, err := tx.Products().Create(ctx, p)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil
	})
}

// UpdateProduct replaces mutable product fields.
func (s CatalogService) UpdateProduct(ctx domain.Context, g Gate, role domain.Role, p domain.Product) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageCatalog) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage the catalog")
	}
	if p.Price < 0 {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "price must be >= 0")
	}
	p.Price = Round2(p.Price)
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		if err := tx.Products().Update(ctx, p); err != nil {
			return nil, err
		}
		return map[string]any{"id": p.ID}, nil
	})
}

// SetProductActive toggles a product's availability.
func (s CatalogService) SetProductActive(ctx domain.Context, g Gate, role domain.Role, id int64, active bool) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageCatalog) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage the catalog")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		return nil, tx.Products().SetActive(ctx, id, active)
	})
}

// ListProducts lists the catalog.
func (s CatalogService) ListProducts(ctx domain.Context, activeOnly bool) ([]domain.Product, error) {
	var out []domain.Product
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Products().List(ctx, activeOnly)
		return err
	})
	return out, err
}

// CreateBranch adds an operating location.
func (s CatalogService) CreateBranch(ctx domain.Context, g Gate, role domain.Role, b *domain.Branch) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageBranches) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage branches")
	}
	if b.Name == "" {
		return MutationResult{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "name is required")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		id, err := tx.Branches().Create(ctx, b)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil
	})
}

// UpdateBranch replaces mutable branch fields.
func (s CatalogService) UpdateBranch(ctx domain.Context, g Gate, role domain.Role, b domain.Branch) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageBranches) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage branches")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		if err := tx.Branches().Update(ctx, b); err != nil {
			return nil, err
		}
		return map[string]any{"id": b.ID}, nil
	})
}

// SetBranchActive soft-deactivates or revives a branch.
func (s CatalogService) SetBranchActive(ctx domain.Context, g Gate, role domain.Role, id int64, active bool) (MutationResult, error) {
	if !domain.Can(role, domain.ActionManageBranches) {
		return MutationResult{}, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage branches")
	}
	return g.Run(ctx, s.Store, func(ctx domain.Context, tx domain.StoreTx) (any, error) {
		return nil, tx.Branches().SetActive(ctx, id, active)
	})
}

// ListBranches lists locations.
func (s CatalogService) ListBranches(ctx domain.Context, activeOnly bool) ([]domain.Branch, error) {
	var out []domain.Branch
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		out, err = tx.Branches().List(ctx, activeOnly)
		return err
	})
	return out, err
}
