package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	SalesCommittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_committed_total",
			Help: "Total number of committed sales",
		},
		[]string{"branch"},
	)
	SaleAmountHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sale_total_amount",
			Help:    "Distribution of committed sale totals",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
	IdempotentReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotent_replays_total",
			Help: "Total number of requests answered from the idempotency store",
		},
		[]string{"endpoint"},
	)
	MovementsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_movements_applied_total",
			Help: "Total number of inventory ledger movements applied",
		},
		[]string{"movement_type"},
	)
	ArchiveRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_runs_total",
			Help: "Total number of archive runs by type and status",
		},
		[]string{"run_type", "status"},
	)
	SyncReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_replays_total",
			Help: "Total number of offline queue replays by outcome",
		},
		[]string{"outcome"},
	)
	SyncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_queue_depth",
			Help: "Number of operations waiting in the offline queue",
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(SalesCommittedTotal)
	prometheus.MustRegister(SaleAmountHistogram)
	prometheus.MustRegister(IdempotentReplaysTotal)
	prometheus.MustRegister(MovementsAppliedTotal)
	prometheus.MustRegister(ArchiveRunsTotal)
	prometheus.MustRegister(SyncReplaysTotal)
	prometheus.MustRegister(SyncQueueDepth)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveSale records one committed sale.
func ObserveSale(branch string, total float64) {
	SalesCommittedTotal.WithLabelValues(branch).Inc()
	SaleAmountHistogram.Observe(total)
}

// ObserveReplay records one idempotent replay hit.
func ObserveReplay(endpoint string) {
	IdempotentReplaysTotal.WithLabelValues(endpoint).Inc()
}

// ObserveArchiveRun records one archive run outcome.
func ObserveArchiveRun(runType, status string) {
	ArchiveRunsTotal.WithLabelValues(runType, status).Inc()
}
