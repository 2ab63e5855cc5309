package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/breadworks/bakeops/internal/domain"
)

// identity is the authenticated request principal after branch pinning.
type identity struct {
	ActorID  int64
	Role     domain.Role
	BranchID int64

	// Offline replay attribution, present only on queued requests.
	IsOffline       bool
	OriginalActorID *int64
	QueuedCreatedAt *time.Time
}

type identityKey struct{}

func identityFrom(r *http.Request) (identity, bool) {
	id, ok := r.Context().Value(identityKey{}).(identity)
	return id, ok
}

// RequireAuth validates the bearer token, resolves the acting branch and
// parses offline replay headers. The X-Location-Id header pins the request
// to a branch the actor has access to; absent, the home branch applies.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		if !strings.HasPrefix(raw, "Bearer ") {
			writeError(w, r, domain.Coded(domain.ErrUnauthorized, domain.CodeAuthRequired, "missing bearer token"))
			return
		}
		claims, err := s.Auth.Parse(strings.TrimPrefix(raw, "Bearer "))
		if err != nil {
			writeError(w, r, err)
			return
		}

		if s.Limiter != nil {
			allowed, retryAfter, _ := s.Limiter.Allow(r.Context(), fmt.Sprintf("actor:%d", claims.ActorID), 1)
			if !allowed {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				}
				writeError(w, r, domain.Coded(domain.ErrRateLimited, domain.CodeRateLimited, "too many requests"))
				return
			}
		}

		id := identity{ActorID: claims.ActorID, Role: claims.Role}
		if claims.BranchID != nil {
			id.BranchID = *claims.BranchID
		}
		if pin := r.Header.Get("X-Location-Id"); pin != "" {
			branchID, err := strconv.ParseInt(pin, 10, 64)
			if err != nil || branchID <= 0 {
				writeError(w, r, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "invalid X-Location-Id"))
				return
			}
			if claims.Role != domain.RoleAdmin {
				ok, err := s.hasBranchAccess(r.Context(), claims.ActorID, branchID)
				if err != nil {
					writeError(w, r, err)
					return
				}
				if !ok {
					writeError(w, r, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "no access to this location"))
					return
				}
			}
			id.BranchID = branchID
		}

		if r.Header.Get("X-Queued-Request") == "true" {
			id.IsOffline = true
			if v := r.Header.Get("X-Offline-Actor-Id"); v != "" {
				actorID, err := strconv.ParseInt(v, 10, 64)
				if err != nil || actorID <= 0 {
					writeError(w, r, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "invalid X-Offline-Actor-Id"))
					return
				}
				id.OriginalActorID = &actorID
			}
			if v := r.Header.Get("X-Queued-Created-At"); v != "" {
				ts, err := time.Parse(time.RFC3339, v)
				if err != nil {
					writeError(w, r, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "invalid X-Queued-Created-At"))
					return
				}
				id.QueuedCreatedAt = &ts
			}
		}

		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin layers on RequireAuth for the /admin subtree.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFrom(r)
		if !ok {
			writeError(w, r, domain.Coded(domain.ErrUnauthorized, domain.CodeAuthRequired, "authentication required"))
			return
		}
		if id.Role != domain.RoleAdmin {
			writeError(w, r, domain.Coded(domain.ErrForbidden, domain.CodeAuthForbidden, "admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) hasBranchAccess(ctx context.Context, actorID, branchID int64) (bool, error) {
	var ok bool
	err := s.Store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		var err error
		ok, err = tx.Actors().HasBranchAccess(ctx, actorID, branchID)
		return err
	})
	return ok, err
}

// idemKey reads the client idempotency key; validation of length happens
// in the admission path.
func idemKey(r *http.Request) string {
	return r.Header.Get("X-Idempotency-Key")
}
