package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/breadworks/bakeops/internal/domain"
)

// Querier is the minimal query surface shared by pgx pools and
// transactions; repositories are written against it so the same code runs
// inside and outside a transaction (and against mocks in tests).
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store over a pgx pool.
type Store struct {
	Pool *pgxpool.Pool

	BeginRetries int
	BeginBackoff time.Duration
}

// NewStore constructs the unit-of-work runner. retries and beginBackoff
// govern the transient BEGIN retry policy.
func NewStore(pool *pgxpool.Pool, retries int, beginBackoff time.Duration) *Store {
	if retries <= 0 {
		retries = 3
	}
	if beginBackoff <= 0 {
		beginBackoff = 200 * time.Millisecond
	}
	return &Store{Pool: pool, BeginRetries: retries, BeginBackoff: beginBackoff}
}

// WithTx runs fn inside one READ COMMITTED transaction. BEGIN is retried
// with jittered backoff on transient failures; a transient failure inside
// the transaction surfaces as DB_TRANSIENT for the caller to map to 503.
func (s *Store) WithTx(ctx domain.Context, fn func(ctx domain.Context, tx domain.StoreTx) error) error {
	var tx pgx.Tx
	begin := func() error {
		t, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		tx = t
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.BeginBackoff
	bo.MaxInterval = 2 * time.Second
	if err := backoff.Retry(begin, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.BeginRetries)), ctx)); err != nil {
		if IsTransient(err) {
			return domain.Coded(domain.ErrTransient, domain.CodeDBTransient, "database unavailable")
		}
		return fmt.Errorf("op=tx.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &storeTx{q: tx}); err != nil {
		if IsTransient(err) {
			return domain.Coded(domain.ErrTransient, domain.CodeDBTransient, "database connection lost mid-transaction")
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if IsTransient(err) {
			return domain.Coded(domain.ErrTransient, domain.CodeDBTransient, "commit failed on transient error")
		}
		return fmt.Errorf("op=tx.commit: %w", err)
	}
	return nil
}

// WithAdvisoryLock holds a session advisory lock on key for the duration
// of fn. The lock rides a dedicated pooled connection so it cannot leak
// across unrelated queries.
func (s *Store) WithAdvisoryLock(ctx domain.Context, key int64, fn func(ctx domain.Context) error) (bool, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("op=lock.acquire_conn: %w", err)
	}
	defer conn.Release()

	var got bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got); err != nil {
		return false, fmt.Errorf("op=lock.try: %w", err)
	}
	if !got {
		return false, nil
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, key)
	}()
	return true, fn(ctx)
}

// Ping reports pool reachability for readiness probes.
func (s *Store) Ping(ctx domain.Context) error { return s.Pool.Ping(ctx) }

// storeTx binds the per-aggregate repositories to one pgx transaction.
type storeTx struct{ q Querier }

func (t *storeTx) Idempotency() domain.IdempotencyRepo     { return &IdempotencyRepo{Q: t.q} }
func (t *storeTx) Inventory() domain.InventoryRepo         { return &InventoryRepo{Q: t.q} }
func (t *storeTx) Branches() domain.BranchRepo             { return &BranchRepo{Q: t.q} }
func (t *storeTx) Products() domain.ProductRepo            { return &ProductRepo{Q: t.q} }
func (t *storeTx) Batches() domain.BatchRepo               { return &BatchRepo{Q: t.q} }
func (t *storeTx) Sales() domain.SaleRepo                  { return &SaleRepo{Q: t.q} }
func (t *storeTx) Actors() domain.ActorRepo                { return &ActorRepo{Q: t.q} }
func (t *storeTx) Staff() domain.StaffRepo                 { return &StaffRepo{Q: t.q} }
func (t *storeTx) Finance() domain.FinanceRepo             { return &FinanceRepo{Q: t.q} }
func (t *storeTx) Events() domain.EventRepo                { return &EventRepo{Q: t.q} }
func (t *storeTx) Notifications() domain.NotificationRepo  { return &NotificationRepo{Q: t.q} }
func (t *storeTx) Archive() domain.ArchiveRepo             { return &ArchiveRepo{Q: t.q} }
func (t *storeTx) Activity() domain.ActivityRepo           { return &ActivityRepo{Q: t.q} }

// NewStoreTx exposes the repository bundle over an arbitrary Querier.
// Tests use it to run repositories against fakes without a pool.
func NewStoreTx(q Querier) domain.StoreTx { return &storeTx{q: q} }

// Transient Postgres failure classes: connection exceptions and admin/
// crash shutdowns, plus the driver-level termination message.
var transientPgCodes = map[string]bool{
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
	"57014": true, // query_canceled (statement timeout)
	"53300": true, // too_many_connections
}

// IsTransient reports whether err is a retriable infrastructure failure
// rather than a domain or SQL error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && transientPgCodes[pgErr.Code] {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Connection terminated") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe")
}

// decodeMetadata parses a stored jsonb column; malformed or empty input
// yields an empty bag rather than an error.
func decodeMetadata(b []byte) domain.Metadata {
	if len(b) == 0 {
		return domain.Metadata{}
	}
	var m domain.Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return domain.Metadata{}
	}
	return m
}

// isUniqueViolation reports whether err is a unique-constraint violation,
// optionally on a specific constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || strings.Contains(pgErr.ConstraintName, constraint)
}
