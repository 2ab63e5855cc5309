package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/breadworks/bakeops/internal/domain"
)

// IdempotencyRepo stores the admission records of the idempotency gate.
// The INSERT … ON CONFLICT DO NOTHING is the admission token: whichever
// transaction lands the row first wins; everyone else replays.
type IdempotencyRepo struct{ Q Querier }

// Reserve attempts to claim (actor, key) for endpoint. A false result
// means the key already exists (committed or about to commit).
func (r *IdempotencyRepo) Reserve(ctx domain.Context, actorID int64, key, endpoint string) (bool, error) {
	tracer := otel.Tracer("repo.idempotency")
	ctx, span := tracer.Start(ctx, "idempotency.Reserve")
	defer span.End()
	q := `INSERT INTO idempotency_keys (actor_id, key, endpoint, created_at)
	      VALUES ($1, $2, $3, now())
	      ON CONFLICT (actor_id, key) DO NOTHING`
	tag, err := r.Q.Exec(ctx, q, actorID, key, endpoint)
	if err != nil {
		return false, fmt.Errorf("op=idempotency.reserve: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Lookup loads the stored record for (actor, key).
func (r *IdempotencyRepo) Lookup(ctx domain.Context, actorID int64, key string) (domain.IdempotencyRecord, error) {
	tracer := otel.Tracer("repo.idempotency")
	ctx, span := tracer.Start(ctx, "idempotency.Lookup")
	defer span.End()
	q := `SELECT actor_id, key, endpoint, COALESCE(response_payload, ''::bytea), created_at
	      FROM idempotency_keys WHERE actor_id=$1 AND key=$2`
	var rec domain.IdempotencyRecord
	row := r.Q.QueryRow(ctx, q, actorID, key)
	if err := row.Scan(&rec.ActorID, &rec.Key, &rec.Endpoint, &rec.ResponsePayload, &rec.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.IdempotencyRecord{}, fmt.Errorf("op=idempotency.lookup: %w", domain.ErrNotFound)
		}
		return domain.IdempotencyRecord{}, fmt.Errorf("op=idempotency.lookup: %w", err)
	}
	return rec, nil
}

// StoreResponse fills the reserved row's payload inside the same
// transaction that performed the mutation.
func (r *IdempotencyRepo) StoreResponse(ctx domain.Context, actorID int64, key string, payload []byte) error {
	tracer := otel.Tracer("repo.idempotency")
	ctx, span := tracer.Start(ctx, "idempotency.StoreResponse")
	defer span.End()
	q := `UPDATE idempotency_keys SET response_payload=$3 WHERE actor_id=$1 AND key=$2`
	tag, err := r.Q.Exec(ctx, q, actorID, key, payload)
	if err != nil {
		return fmt.Errorf("op=idempotency.store_response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=idempotency.store_response: %w", domain.ErrNotFound)
	}
	return nil
}
