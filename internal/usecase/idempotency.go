// Package usecase contains application business logic services.
package usecase

import (
	"encoding/json"
	"fmt"

	"github.com/breadworks/bakeops/internal/domain"
)

// Admission is the outcome of the idempotency gate for one request.
type Admission struct {
	// Replayed is true when the key was already consumed; Payload then
	// holds the stored response verbatim and the caller must not execute.
	Replayed bool
	Payload  []byte
	// key/actor retained so the caller can store its response on commit.
	actorID int64
	key     string
}

// Admit runs the idempotency gate inside the caller's transaction. An
// empty key admits unconditionally (the request is simply not protected).
// The INSERT admission token guarantees at most one executor per
// (actor, key); losers replay the stored payload.
func Admit(ctx domain.Context, tx domain.StoreTx, actorID int64, key, endpoint string) (Admission, error) {
	if key == "" {
		return Admission{}, nil
	}
	if actorID == 0 {
		return Admission{}, domain.Coded(domain.ErrUnauthorized, domain.CodeAuthRequired,
			"idempotency keys require an authenticated actor")
	}
	if len(key) > domain.MaxIdempotencyKeyLen {
		return Admission{}, domain.Coded(domain.ErrInvalidArgument, domain.CodeValidationFailed,
			fmt.Sprintf("idempotency key exceeds %d chars", domain.MaxIdempotencyKeyLen))
	}
	won, err := tx.Idempotency().Reserve(ctx, actorID, key, endpoint)
	if err != nil {
		return Admission{}, err
	}
	if won {
		return Admission{actorID: actorID, key: key}, nil
	}
	rec, err := tx.Idempotency().Lookup(ctx, actorID, key)
	if err != nil {
		return Admission{}, err
	}
	if rec.Endpoint != endpoint {
		return Admission{}, domain.Coded(domain.ErrConflict, domain.CodeIdemEndpointMism,
			fmt.Sprintf("idempotency key already used on %s", rec.Endpoint))
	}
	return Admission{Replayed: true, Payload: rec.ResponsePayload}, nil
}

// StoreResponse persists the response payload against the admitted key in
// the same transaction. No-op for unprotected requests.
func (a Admission) StoreResponse(ctx domain.Context, tx domain.StoreTx, payload []byte) error {
	if a.key == "" || a.Replayed {
		return nil
	}
	return tx.Idempotency().StoreResponse(ctx, a.actorID, a.key, payload)
}

// MutationResult carries a gated write's response payload and whether it
// was served from a stored replay. An empty payload means the operation
// answers with a bare status.
type MutationResult struct {
	Replayed bool
	Payload  []byte
}

// Gate binds one mutating request to its idempotency scope: the acting
// actor (the original actor for queued offline replays), the client key
// and the endpoint tag the key is pinned to.
type Gate struct {
	ActorID  int64
	Key      string
	Endpoint string
}

// Run executes fn inside a single transaction guarded by the admission
// token. Winners have their marshaled result stored against the key so a
// replay answers with the identical bytes without executing fn; a nil
// result stores an empty payload. Any error rolls back the reservation,
// leaving the key unconsumed for a retry.
func (g Gate) Run(ctx domain.Context, store domain.Store, fn func(domain.Context, domain.StoreTx) (any, error)) (MutationResult, error) {
	var out MutationResult
	err := store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		adm, err := Admit(ctx, tx, g.ActorID, g.Key, g.Endpoint)
		if err != nil {
			return err
		}
		if adm.Replayed {
			out = MutationResult{Replayed: true, Payload: adm.Payload}
			return nil
		}
		res, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		var payload []byte
		if res != nil {
			if payload, err = json.Marshal(res); err != nil {
				return fmt.Errorf("op=idempotency.encode_response: %w", err)
			}
		}
		if err := adm.StoreResponse(ctx, tx, payload); err != nil {
			return err
		}
		out = MutationResult{Payload: payload}
		return nil
	})
	return out, err
}
