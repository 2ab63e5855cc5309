package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/breadworks/bakeops/internal/adapter/observability"
	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

type commitSaleRequest struct {
	Items           []usecase.SaleLine `json:"items" validate:"required,min=1,dive"`
	PaymentMethod   string             `json:"payment_method" validate:"required,oneof=cash card mobile"`
	CashierTimingMS *int64             `json:"cashier_timing_ms,omitempty" validate:"omitempty,gte=0"`
}

// CommitSaleHandler runs the sale write path. Queued offline replays keep
// the original cashier as the actor of record.
func (s *Server) CommitSaleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		var req commitSaleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		actorID := id.ActorID
		if id.IsOffline && id.OriginalActorID != nil {
			actorID = *id.OriginalActorID
		}
		res, err := s.Sales.Commit(r.Context(), usecase.CommitSaleInput{
			ActorID:         actorID,
			Role:            id.Role,
			BranchID:        id.BranchID,
			Items:           req.Items,
			PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
			CashierTimingMS: req.CashierTimingMS,
			IdempotencyKey:  idemKey(r),
			Endpoint:        "POST /v1/sales",
			IsOffline:       id.IsOffline,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if res.Replayed {
			observability.ObserveReplay("POST /v1/sales")
			w.Header().Set("X-Idempotent-Replay", "true")
		} else {
			var receipt usecase.SaleReceipt
			if json.Unmarshal(res.Payload, &receipt) == nil {
				observability.ObserveSale(branchLabel(id.BranchID), receipt.TotalAmount)
			}
		}
		writeRaw(w, http.StatusOK, res.Payload)
	}
}

// VoidSaleHandler compensates a committed sale.
func (s *Server) VoidSaleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		saleID, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "POST /v1/sales/{id}/void"
		res, err := s.Sales.Void(r.Context(), mutationGate(r, endpoint), id.Role, saleID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

// ListSalesHandler pages sales for the acting branch.
func (s *Server) ListSalesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		sales, err := s.Sales.ListByBranch(r.Context(), id.BranchID,
			queryInt(r, "limit", 50), queryInt(r, "offset", 0))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": salesJSON(sales)})
	}
}

type saleJSON struct {
	ID            int64   `json:"id"`
	BranchID      int64   `json:"branch_id"`
	CashierID     int64   `json:"cashier_id"`
	TotalAmount   float64 `json:"total_amount"`
	PaymentMethod string  `json:"payment_method"`
	IsOffline     bool    `json:"is_offline"`
	IsVoided      bool    `json:"is_voided"`
	SaleDate      string  `json:"sale_date"`
	ReceiptNumber string  `json:"receipt_number"`
}

func salesJSON(in []domain.Sale) []saleJSON {
	out := make([]saleJSON, 0, len(in))
	for _, s := range in {
		out = append(out, saleJSON{
			ID: s.ID, BranchID: s.BranchID, CashierID: s.CashierID,
			TotalAmount: s.TotalAmount, PaymentMethod: string(s.PaymentMethod),
			IsOffline: s.IsOffline, IsVoided: s.IsVoided,
			SaleDate: s.SaleDate.UTC().Format("2006-01-02T15:04:05Z07:00"),
			ReceiptNumber: s.ReceiptNumber,
		})
	}
	return out
}

func branchLabel(id int64) string { return strconv.FormatInt(id, 10) }
