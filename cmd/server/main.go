// Command server starts the bakery operations HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/breadworks/bakeops/internal/adapter/httpserver"
	"github.com/breadworks/bakeops/internal/adapter/observability"
	"github.com/breadworks/bakeops/internal/adapter/repo/postgres"
	"github.com/breadworks/bakeops/internal/app"
	"github.com/breadworks/bakeops/internal/config"
	"github.com/breadworks/bakeops/internal/scheduler"
	"github.com/breadworks/bakeops/internal/service/ratelimiter"
)

// redisPinger adapts *redis.Client to the readiness check interface.
type redisPinger struct{ *redis.Client }

func (p redisPinger) Ping(ctx context.Context) app.RedisPingResult {
	return p.Client.Ping(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so /metrics exposes
	// HTTP, sale and archive instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}

	store := postgres.NewStore(pool, cfg.TxBeginRetries, cfg.TxBeginRetryBackoff)

	if err := seedAdmin(ctx, store, cfg); err != nil {
		slog.Error("admin bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Redis is optional; without it per-actor limiting is disabled and the
	// router's per-IP budget is the only throttle.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}

	var limiter ratelimiter.Limiter
	if rl := ratelimiter.NewRedisLuaLimiter(rdb, pool, map[string]ratelimiter.BucketConfig{
		ratelimiter.DefaultBucketKey: ratelimiter.NewBucketConfigFromPerMinute(cfg.RateLimitPerMin),
	}); rl != nil {
		if err := rl.WarmFromPostgres(ctx); err != nil {
			slog.Warn("rate limiter warm-up failed", slog.Any("error", err))
		}
		limiter = rl
	}

	srv := httpserver.NewServer(cfg, store)
	srv.Limiter = limiter

	dbCheck, redisCheck := app.BuildReadinessChecks(pool, readinessRedis(rdb))
	srv.ReadyChecks = map[string]func(ctx context.Context) error{"db": dbCheck}
	if rdb != nil {
		srv.ReadyChecks["redis"] = redisCheck
	}

	handler := app.BuildRouter(cfg, srv)

	// Daily archive sweep, guarded by an advisory lock inside the service
	// so only one replica runs it.
	schedCtx, stopSched := context.WithCancel(ctx)
	defer stopSched()
	go scheduler.New(srv.Archive, logger, cfg.ArchiveRunTimeout).Run(schedCtx)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	stopSched()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// readinessRedis wraps the optional client; a nil *redis.Client must stay a
// nil interface so the check reports "not configured".
func readinessRedis(rdb *redis.Client) app.RedisClient {
	if rdb == nil {
		return nil
	}
	return redisPinger{rdb}
}
