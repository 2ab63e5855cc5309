package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/breadworks/bakeops/internal/domain"
)

// ActorRepo persists login principals and the actor_branches access map.
type ActorRepo struct{ Q Querier }

const actorCols = `id, username, email, password_hash, role, branch_id, is_active, hire_date, termination_date, created_at`

func (r *ActorRepo) scanActor(row pgx.Row) (domain.Actor, error) {
	var a domain.Actor
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &a.BranchID,
		&a.IsActive, &a.HireDate, &a.TerminationDate, &a.CreatedAt)
	return a, err
}

func (r *ActorRepo) Create(ctx domain.Context, a *domain.Actor) (int64, error) {
	tracer := otel.Tracer("repo.actors")
	ctx, span := tracer.Start(ctx, "actors.Create")
	defer span.End()
	q := `INSERT INTO actors (username, email, password_hash, role, branch_id, is_active, hire_date, created_at)
	      VALUES ($1,$2,$3,$4,$5,true,$6,now()) RETURNING id, created_at`
	err := r.Q.QueryRow(ctx, q, a.Username, a.Email, a.PasswordHash, a.Role, a.BranchID, a.HireDate).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return 0, domain.Coded(domain.ErrConflict, domain.CodeAccountExists,
				fmt.Sprintf("an account named %q already exists", a.Username))
		}
		return 0, fmt.Errorf("op=actor.create: %w", err)
	}
	a.IsActive = true
	return a.ID, nil
}

func (r *ActorRepo) Get(ctx domain.Context, id int64) (domain.Actor, error) {
	a, err := r.scanActor(r.Q.QueryRow(ctx, `SELECT `+actorCols+` FROM actors WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Actor{}, fmt.Errorf("op=actor.get: %w", domain.ErrNotFound)
		}
		return domain.Actor{}, fmt.Errorf("op=actor.get: %w", err)
	}
	return a, nil
}

func (r *ActorRepo) FindByUsername(ctx domain.Context, username string) (domain.Actor, bool, error) {
	a, err := r.scanActor(r.Q.QueryRow(ctx, `SELECT `+actorCols+` FROM actors WHERE username=$1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Actor{}, false, nil
		}
		return domain.Actor{}, false, fmt.Errorf("op=actor.find_by_username: %w", err)
	}
	return a, true, nil
}

// FindByUsernameOrEmail locates any actor matching either identity,
// active or not; the staff-account reuse path needs the inactive ones.
func (r *ActorRepo) FindByUsernameOrEmail(ctx domain.Context, username, email string) (domain.Actor, bool, error) {
	q := `SELECT ` + actorCols + ` FROM actors WHERE username=$1 OR email=$2 ORDER BY is_active DESC, id LIMIT 1`
	a, err := r.scanActor(r.Q.QueryRow(ctx, q, username, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Actor{}, false, nil
		}
		return domain.Actor{}, false, fmt.Errorf("op=actor.find: %w", err)
	}
	return a, true, nil
}

func (r *ActorRepo) Update(ctx domain.Context, a domain.Actor) error {
	q := `UPDATE actors SET username=$2, email=$3, password_hash=$4, role=$5, branch_id=$6 WHERE id=$1`
	tag, err := r.Q.Exec(ctx, q, a.ID, a.Username, a.Email, a.PasswordHash, a.Role, a.BranchID)
	if err != nil {
		return fmt.Errorf("op=actor.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=actor.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Reactivate revives a soft-deleted actor in place with fresh credentials.
func (r *ActorRepo) Reactivate(ctx domain.Context, id int64, passwordHash string, role domain.Role, branchID int64) error {
	q := `UPDATE actors SET is_active=true, termination_date=NULL, password_hash=$2, role=$3, branch_id=$4, hire_date=now()
	      WHERE id=$1 AND NOT is_active`
	tag, err := r.Q.Exec(ctx, q, id, passwordHash, role, branchID)
	if err != nil {
		return fmt.Errorf("op=actor.reactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=actor.reactivate: %w", domain.ErrConflict)
	}
	return nil
}

func (r *ActorRepo) SetActive(ctx domain.Context, id int64, active bool, terminatedAt *time.Time) error {
	q := `UPDATE actors SET is_active=$2, termination_date=$3 WHERE id=$1`
	tag, err := r.Q.Exec(ctx, q, id, active, terminatedAt)
	if err != nil {
		return fmt.Errorf("op=actor.set_active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=actor.set_active: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *ActorRepo) UpsertBranchAccess(ctx domain.Context, actorID, branchID int64) error {
	q := `INSERT INTO actor_branches (actor_id, branch_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`
	if _, err := r.Q.Exec(ctx, q, actorID, branchID); err != nil {
		return fmt.Errorf("op=actor.upsert_branch_access: %w", err)
	}
	return nil
}

func (r *ActorRepo) ClearBranchAccess(ctx domain.Context, actorID int64) error {
	if _, err := r.Q.Exec(ctx, `DELETE FROM actor_branches WHERE actor_id=$1`, actorID); err != nil {
		return fmt.Errorf("op=actor.clear_branch_access: %w", err)
	}
	return nil
}

// HasBranchAccess reports whether actorID may operate on branchID, either
// as home branch or through the actor_branches mapping.
func (r *ActorRepo) HasBranchAccess(ctx domain.Context, actorID, branchID int64) (bool, error) {
	q := `SELECT EXISTS (
	        SELECT 1 FROM actors WHERE id=$1 AND branch_id=$2
	        UNION
	        SELECT 1 FROM actor_branches WHERE actor_id=$1 AND branch_id=$2)`
	var ok bool
	if err := r.Q.QueryRow(ctx, q, actorID, branchID).Scan(&ok); err != nil {
		return false, fmt.Errorf("op=actor.has_branch_access: %w", err)
	}
	return ok, nil
}

// BranchStaff lists active actors of the given roles attached to a branch.
func (r *ActorRepo) BranchStaff(ctx domain.Context, branchID int64, roles []domain.Role) ([]domain.Actor, error) {
	q := `SELECT DISTINCT a.id, a.username, a.email, a.password_hash, a.role, a.branch_id,
	             a.is_active, a.hire_date, a.termination_date, a.created_at
	      FROM actors a
	      LEFT JOIN actor_branches ab ON ab.actor_id = a.id
	      WHERE a.is_active AND a.role = ANY($2) AND (a.branch_id = $1 OR ab.branch_id = $1)
	      ORDER BY a.id`
	roleStrs := make([]string, len(roles))
	for i, ro := range roles {
		roleStrs[i] = string(ro)
	}
	rows, err := r.Q.Query(ctx, q, branchID, roleStrs)
	if err != nil {
		return nil, fmt.Errorf("op=actor.branch_staff: %w", err)
	}
	defer rows.Close()
	var out []domain.Actor
	for rows.Next() {
		var a domain.Actor
		if err := rows.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &a.BranchID,
			&a.IsActive, &a.HireDate, &a.TerminationDate, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=actor.branch_staff_scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=actor.branch_staff_rows: %w", err)
	}
	return out, nil
}
