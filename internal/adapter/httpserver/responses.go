package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/breadworks/bakeops/internal/adapter/observability"
	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/usecase"
)

// errorEnvelope is the flat error shape every failing endpoint answers
// with: human message, stable machine code, optional details, and the
// request id for log correlation.
type errorEnvelope struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRaw emits a pre-encoded JSON payload, used for idempotent replays
// so responses stay byte-identical to the first execution.
func writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// writeError maps the domain error taxonomy onto HTTP statuses and the
// JSON error envelope. Transient and rate-limit failures carry Retry-After.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
		if w.Header().Get("Retry-After") == "" {
			w.Header().Set("Retry-After", "60")
		}
	case errors.Is(err, domain.ErrTransient):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}
	code := domain.CodeOf(err)
	// Linking conflicts read as client mistakes, not contention.
	if code == domain.CodeStaffAlreadyLinked && status == http.StatusConflict {
		status = http.StatusBadRequest
	}
	env := errorEnvelope{
		Error:     err.Error(),
		Code:      code,
		RequestID: r.Header.Get("X-Request-Id"),
	}
	// Assign only when present so omitempty drops the field instead of
	// rendering a typed-nil map as null.
	if details := domain.DetailsOf(err); details != nil {
		env.Details = details
	}
	writeJSON(w, status, env)
}

// mutationGate builds the idempotency gate for a mutating request. Queued
// offline deliveries dedupe under the actor who originally queued the
// operation, not whoever replays it.
func mutationGate(r *http.Request, endpoint string) usecase.Gate {
	id, _ := identityFrom(r)
	actorID := id.ActorID
	if id.IsOffline && id.OriginalActorID != nil {
		actorID = *id.OriginalActorID
	}
	return usecase.Gate{ActorID: actorID, Key: idemKey(r), Endpoint: endpoint}
}

// writeMutation emits a gated mutation's response. Replays carry the
// X-Idempotent-Replay marker; an empty payload answers 204.
func writeMutation(w http.ResponseWriter, res usecase.MutationResult, status int, endpoint string) {
	if res.Replayed {
		observability.ObserveReplay(endpoint)
		w.Header().Set("X-Idempotent-Replay", "true")
	}
	if len(res.Payload) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeRaw(w, status, res.Payload)
}

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
