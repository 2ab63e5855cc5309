package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/breadworks/bakeops/internal/adapter/observability"
	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

// ArchiveSettingsHandler returns the acting branch's archive policy.
func (s *Server) ArchiveSettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		settings, err := s.Archive.Settings(r.Context(), id.BranchID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, archiveSettingsJSON(settings))
	}
}

type archiveSettingsRequest struct {
	Enabled                bool   `json:"enabled"`
	RetentionMonths        int    `json:"retention_months" validate:"required,gte=1"`
	ColdStorageAfterMonths int    `json:"cold_storage_after_months" validate:"required,gte=1"`
	ConfirmationPhrase     string `json:"confirmation_phrase,omitempty"`
}

// UpdateArchiveSettingsHandler stores the acting branch's archive policy.
func (s *Server) UpdateArchiveSettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		var req archiveSettingsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		in := domain.ArchiveSettings{
			BranchID:               id.BranchID,
			Enabled:                req.Enabled,
			RetentionMonths:        req.RetentionMonths,
			ColdStorageAfterMonths: req.ColdStorageAfterMonths,
			ConfirmationPhrase:     req.ConfirmationPhrase,
		}
		endpoint := "PUT /v1/archive/settings"
		res, err := s.Archive.UpdateSettings(r.Context(), mutationGate(r, endpoint), id.Role, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

type archiveRunRequest struct {
	Confirmation string `json:"confirmation" validate:"required"`
}

// RunArchiveHandler triggers a manual archive run for the acting branch.
func (s *Server) RunArchiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		var req archiveRunRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		endpoint := "POST /v1/archive/run"
		res, err := s.Archive.RunManual(r.Context(), mutationGate(r, endpoint), id.Role, id.BranchID, req.Confirmation)
		if err != nil {
			observability.ObserveArchiveRun("manual", string(domain.ArchiveFailed))
			writeError(w, r, err)
			return
		}
		var view usecase.ArchiveRunView
		if json.Unmarshal(res.Payload, &view) == nil {
			observability.ObserveArchiveRun("manual", view.Status)
		}
		writeMutation(w, res, http.StatusOK, endpoint)
	}
}

// ListArchiveRunsHandler pages past runs for the acting branch.
func (s *Server) ListArchiveRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFrom(r)
		runs, err := s.Archive.Runs(r.Context(), id.BranchID, queryInt(r, "limit", 20))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]map[string]any, 0, len(runs))
		for _, run := range runs {
			out = append(out, archiveRunJSON(run))
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": out})
	}
}

func archiveSettingsJSON(a domain.ArchiveSettings) map[string]any {
	out := map[string]any{
		"branch_id":                 a.BranchID,
		"enabled":                   a.Enabled,
		"retention_months":          a.RetentionMonths,
		"cold_storage_after_months": a.ColdStorageAfterMonths,
		"confirmation_phrase":       a.ConfirmationPhrase,
	}
	if a.LastRunAt != nil {
		out["last_run_at"] = a.LastRunAt.UTC()
	}
	if a.LastReminderAt != nil {
		out["last_reminder_at"] = a.LastReminderAt.UTC()
	}
	return out
}

func archiveRunJSON(run domain.ArchiveRun) map[string]any {
	out := map[string]any{
		"id":        run.ID,
		"branch_id": run.BranchID,
		"run_type":  run.RunType,
		"status":    string(run.Status),
		"cutoff_at": run.CutoffAt.UTC(),
		"details":   run.Details,
	}
	if run.TriggeredBy != nil {
		out["triggered_by"] = *run.TriggeredBy
	}
	if run.ErrorMsg != "" {
		out["error"] = run.ErrorMsg
	}
	return out
}
