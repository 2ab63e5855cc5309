package httpserver

import (
	"net/http"

	"github.com/breadworks/bakeops/internal/domain"
)

type productRequest struct {
	Name       string   `json:"name" validate:"required"`
	CategoryID int64    `json:"category_id" validate:"gte=0"`
	Price      float64  `json:"price" validate:"gte=0"`
	Cost       *float64 `json:"cost,omitempty" validate:"omitempty,gte=0"`
	Unit       string   `json:"unit,omitempty"`
}

// CreateProductHandler adds a catalog entry.
func (s *Server) CreateProductHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		var req productRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		p := domain.Product{
			Name: req.Name, CategoryID: req.CategoryID, Price: req.Price,
			Cost: req.Cost, Unit: req.Unit, IsActive: true,
		}
		endpoint := "POST /v1/products"
		res, err := s.Catalog.CreateProduct(r.Context(), mutationGate(r, endpoint), id.Role, &p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusCreated, endpoint)
	}
}

// UpdateProductHandler replaces mutable product fields.
func (s *Server) UpdateProductHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		pid, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req productRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		p := domain.Product{
			ID: pid, Name: req.Name, CategoryID: req.CategoryID,
			Price: req.Price, Cost: req.Cost, Unit: req.Unit, IsActive: true,
		}
		endpoint := "PUT /v1/products/{id}"
		res, err := s.Catalog.UpdateProduct(r.Context(), mutationGate(r, endpoint), id.Role, p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

// DeactivateProductHandler soft-deletes a product; history survives.
func (s *Server) DeactivateProductHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		pid, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "DELETE /v1/products/{id}"
		res, err := s.Catalog.SetProductActive(r.Context(), mutationGate(r, endpoint), id.Role, pid, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusNoContent, endpoint)
	}
}

// ListProductsHandler lists the catalog; ?active=true filters.
func (s *Server) ListProductsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := r.URL.Query().Get("active") == "true"
		products, err := s.Catalog.ListProducts(r.Context(), activeOnly)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	}
}

type branchRequest struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// CreateBranchHandler adds an operating location.
func (s *Server) CreateBranchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		var req branchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		b := domain.Branch{Name: req.Name, Address: req.Address, Phone: req.Phone, IsActive: true}
		endpoint := "POST /v1/locations"
		res, err := s.Catalog.CreateBranch(r.Context(), mutationGate(r, endpoint), id.Role, &b)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusCreated, endpoint)
	}
}

// UpdateBranchHandler replaces mutable branch fields.
func (s *Server) UpdateBranchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		bid, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req branchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		b := domain.Branch{ID: bid, Name: req.Name, Address: req.Address, Phone: req.Phone, IsActive: true}
		endpoint := "PUT /v1/locations/{id}"
		res, err := s.Catalog.UpdateBranch(r.Context(), mutationGate(r, endpoint), id.Role, b)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

// DeactivateBranchHandler soft-deactivates a location.
func (s *Server) DeactivateBranchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		bid, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "DELETE /v1/locations/{id}"
		res, err := s.Catalog.SetBranchActive(r.Context(), mutationGate(r, endpoint), id.Role, bid, false)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusNoContent, endpoint)
	}
}

// ListBranchesHandler lists locations.
func (s *Server) ListBranchesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := r.URL.Query().Get("active") == "true"
		branches, err := s.Catalog.ListBranches(r.Context(), activeOnly)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"locations": branches})
	}
}
