// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the REST API of the bakery operations backend: sales,
// production batches, inventory adjustments, staff administration,
// notifications and archival. The package keeps HTTP concerns apart
// from business logic; handlers decode, authorize and delegate to the
// usecase services.
package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/breadworks/bakeops/internal/config"
	"github.com/breadworks/bakeops/internal/domain"
	"github.com/breadworks/bakeops/internal/service/ratelimiter"
	"github.com/breadworks/bakeops/internal/usecase"
)

// Server bundles the usecase services behind the HTTP handlers.
type Server struct {
	Cfg       config.Config
	Store     domain.Store
	Auth      usecase.AuthService
	Sales     usecase.SaleService
	Batches   usecase.BatchService
	Inventory usecase.InventoryService
	Staff     usecase.StaffService
	Finance   usecase.FinanceService
	Catalog   usecase.CatalogService
	Notify    usecase.NotifyService
	Archive   usecase.ArchiveService

	// Limiter throttles authenticated actors; nil disables per-actor
	// limiting and leaves only the router's per-IP budget.
	Limiter ratelimiter.Limiter

	// ReadyChecks are probed by /readyz; each maps a dependency name to
	// its check.
	ReadyChecks map[string]func(ctx context.Context) error
}

// NewServer wires a Server over one store.
func NewServer(cfg config.Config, store domain.Store) *Server {
	return &Server{
		Cfg:       cfg,
		Store:     store,
		Auth:      usecase.NewAuthService(store, []byte(cfg.JWTSecret), cfg.JWTTokenTTL, cfg.AdminRecoveryKey),
		Sales:     usecase.NewSaleService(store),
		Batches:   usecase.NewBatchService(store, cfg.BatchEditWindow),
		Inventory: usecase.NewInventoryService(store),
		Staff:     usecase.NewStaffService(store),
		Finance:   usecase.NewFinanceService(store),
		Catalog:   usecase.NewCatalogService(store),
		Notify:    usecase.NewNotifyService(store),
		Archive:   usecase.NewArchiveService(store, cfg.ArchiveRetentionMonths, cfg.ArchiveColdAfterMonths),
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// ReadyzHandler probes every registered dependency check.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status := map[string]string{}
		ok := true
		for name, check := range s.ReadyChecks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				ok = false
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"ready": ok, "checks": status})
	}
}

// urlID parses the {id} path parameter.
func urlID(r *http.Request, name string) (int64, error) {
	raw := pathParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed, "invalid id in path")
	}
	return id, nil
}

// queryInt parses an optional integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
