package httpserver

import (
	"net/http"

	"github.com/breadworks/bakeops/internal/domain"
)

// ListInventoryHandler lists current stock for the acting branch.
func (s *Server) ListInventoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		levels, err := s.Inventory.StockByBranch(r.Context(), id.BranchID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]map[string]any, 0, len(levels))
		for _, lvl := range levels {
			out = append(out, map[string]any{
				"product_id":   lvl.ProductID,
				"quantity":     lvl.Quantity,
				"source":       string(lvl.Source),
				"last_updated": lvl.LastUpdated.UTC(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"branch_id": id.BranchID, "stock": out})
	}
}

type setLevelRequest struct {
	Quantity int64  `json:"quantity" validate:"gte=0"`
	Source   string `json:"source,omitempty" validate:"omitempty,oneof=baked purchased"`
	Note     string `json:"note,omitempty"`
}

// SetLevelHandler adjusts one pair to an absolute quantity through the
// ledger.
func (s *Server) SetLevelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		productID, err := urlID(r, "product_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req setLevelRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "PUT /v1/inventory/{product_id}"
		res, err := s.Inventory.SetLevel(r.Context(), mutationGate(r, endpoint), id.Role,
			id.BranchID, productID, req.Quantity, domain.StockSource(req.Source), req.Note)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

// ClearLevelHandler zeroes one pair's stock.
func (s *Server) ClearLevelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		productID, err := urlID(r, "product_id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		note := r.URL.Query().Get("note")
		endpoint := "DELETE /v1/inventory/{product_id}"
		res, err := s.Inventory.Clear(r.Context(), mutationGate(r, endpoint), id.Role, id.BranchID, productID, note)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

// MovementsHandler lists the ledger rows behind one reference.
func (s *Server) MovementsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refType := r.URL.Query().Get("reference_type")
		refID := int64(queryInt(r, "reference_id", 0))
		if refType == "" || refID <= 0 {
			writeError(w, r, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
				"reference_type and reference_id are required"))
			return
		}
		movements, err := s.Inventory.MovementsFor(r.Context(), refType, refID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]map[string]any, 0, len(movements))
		for _, m := range movements {
			out = append(out, map[string]any{
				"id":              m.ID,
				"product_id":      m.ProductID,
				"movement_type":   string(m.MovementType),
				"quantity_change": m.QuantityChange,
				"source":          string(m.Source),
				"actor_id":        m.ActorID,
				"created_at":      m.CreatedAt.UTC(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"movements": out})
	}
}
