package httpserver

import (
	"net/http"

	"github.com/breadworks/bakeops/internal/domain"
)

// ListNotificationsHandler returns the caller's notifications.
func (s *Server) ListNotificationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		unreadOnly := r.URL.Query().Get("unread") == "true"
		items, err := s.Notify.List(r.Context(), id.ActorID, unreadOnly, queryInt(r, "limit", 50))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
	}
}

// MarkNotificationReadHandler acknowledges one of the caller's
// notifications.
func (s *Server) MarkNotificationReadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nid, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "PUT /v1/notifications/{id}/read"
		res, err := s.Notify.MarkRead(r.Context(), mutationGate(r, endpoint), nid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

type alertRuleRequest struct {
	BranchID  *int64  `json:"branch_id,omitempty" validate:"omitempty,gt=0"`
	EventType string  `json:"event_type" validate:"required"`
	Threshold float64 `json:"threshold" validate:"gte=0"`
	Enabled   bool    `json:"enabled"`
}

// CreateRuleHandler adds an alert rule.
func (s *Server) CreateRuleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		if !domain.Can(id.Role, domain.ActionManageRules) {
			writeError(w, r, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage alert rules"))
			return
		}
		var req alertRuleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		rule := domain.AlertRule{
			BranchID: req.BranchID, EventType: req.EventType,
			Threshold: req.Threshold, Enabled: req.Enabled,
		}
		endpoint := "POST /v1/notifications/rules"
		res, err := s.Notify.CreateRule(r.Context(), mutationGate(r, endpoint), &rule)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusCreated, endpoint)
	}
}

// UpdateRuleHandler replaces an alert rule.
func (s *Server) UpdateRuleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		if !domain.Can(id.Role, domain.ActionManageRules) {
			writeError(w, r, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage alert rules"))
			return
		}
		rid, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req alertRuleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		rule := domain.AlertRule{
			ID: rid, BranchID: req.BranchID, EventType: req.EventType,
			Threshold: req.Threshold, Enabled: req.Enabled,
		}
		endpoint := "PUT /v1/notifications/rules/{id}"
		res, err := s.Notify.UpdateRule(r.Context(), mutationGate(r, endpoint), rule)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

// DeleteRuleHandler removes an alert rule.
func (s *Server) DeleteRuleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		if !domain.Can(id.Role, domain.ActionManageRules) {
			writeError(w, r, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "role may not manage alert rules"))
			return
		}
		rid, err := urlID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "DELETE /v1/notifications/rules/{id}"
		res, err := s.Notify.DeleteRule(r.Context(), mutationGate(r, endpoint), rid)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusNoContent, endpoint)
	}
}

// ListRulesHandler returns rules visible to the acting branch.
func (s *Server) ListRulesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		rules, err := s.Notify.ListRules(r.Context(), id.BranchID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
	}
}
