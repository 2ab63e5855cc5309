package httpserver

import (
	"net/http"
	"time"

	"github.com/breadworks/bakeops/internal/domain"
)

type expenseRequest struct {
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Date     string  `json:"date,omitempty"`
	Category string  `json:"category" validate:"required"`
	Notes    string  `json:"notes,omitempty"`
}

// CreateExpenseHandler records a branch expense.
func (s *Server) CreateExpenseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		var req expenseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		e := domain.Expense{
			BranchID: id.BranchID, Amount: req.Amount, Date: date,
			Category: req.Category, Notes: req.Notes, CreatedBy: id.ActorID,
		}
		endpoint := "POST /v1/expenses"
		res, err := s.Finance.CreateExpense(r.Context(), mutationGate(r, endpoint), id.Role, &e)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusCreated, endpoint)
	}
}

// UpdateExpenseHandler replaces an expense row.
func (s *Server) UpdateExpenseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		expID, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req expenseRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		e := domain.Expense{
			ID: expID, BranchID: id.BranchID, Amount: req.Amount, Date: date,
			Category: req.Category, Notes: req.Notes, CreatedBy: id.ActorID,
		}
		endpoint := "PUT /v1/expenses/{id}"
		res, err := s.Finance.UpdateExpense(r.Context(), mutationGate(r, endpoint), id.Role, e)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

// DeleteExpenseHandler removes an expense row.
func (s *Server) DeleteExpenseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		expID, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "DELETE /v1/expenses/{id}"
		res, err := s.Finance.DeleteExpense(r.Context(), mutationGate(r, endpoint), id.Role, expID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusNoContent, endpoint)
	}
}

// ListExpensesHandler returns expenses for the acting branch in a window.
func (s *Server) ListExpensesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		from, to, err := parseRange(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		expenses, err := s.Finance.ListExpenses(r.Context(), id.BranchID, from, to)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
	}
}

type paymentRequest struct {
	StaffProfileID int64   `json:"staff_profile_id" validate:"required,gt=0"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	Date           string  `json:"date,omitempty"`
	PaymentType    string  `json:"payment_type" validate:"required,oneof=salary bonus advance deduction"`
	Notes          string  `json:"notes,omitempty"`
}

// CreatePaymentHandler records a payroll payment.
func (s *Server) CreatePaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		var req paymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		p := domain.StaffPayment{
			BranchID: id.BranchID, StaffProfileID: req.StaffProfileID, Amount: req.Amount,
			Date: date, PaymentType: req.PaymentType, Notes: req.Notes, CreatedBy: id.ActorID,
		}
		endpoint := "POST /v1/payments"
		res, err := s.Finance.CreatePayment(r.Context(), mutationGate(r, endpoint), id.Role, &p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusCreated, endpoint)
	}
}

// DeletePaymentHandler removes a payroll row.
func (s *Server) DeletePaymentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		payID, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "DELETE /v1/payments/{id}"
		res, err := s.Finance.DeletePayment(r.Context(), mutationGate(r, endpoint), id.Role, payID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusNoContent, endpoint)
	}
}

// ListPaymentsHandler returns payroll rows for the acting branch.
func (s *Server) ListPaymentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		from, to, err := parseRange(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		payments, err := s.Finance.ListPayments(r.Context(), id.BranchID, from, to)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
	}
}

// parseDate accepts a YYYY-MM-DD date, defaulting to today.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
			"date must be YYYY-MM-DD")
	}
	return t, nil
}

// parseRange reads the from/to query window, defaulting to the last 30 days.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from, to := now.AddDate(0, 0, -30), now.AddDate(0, 0, 1)
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
	}
	return from, to, nil
}
