package postgres

import (
	"fmt"

	"github.com/breadworks/bakeops/internal/domain"
)

// ActivityRepo appends audit entries for administrative actions.
type ActivityRepo struct{ Q Querier }

func (r *ActivityRepo) Insert(ctx domain.Context, e domain.ActivityEntry) (int64, error) {
	q := `INSERT INTO activity_log (branch_id, actor_id, action, details, created_at)
	      VALUES ($1,$2,$3,$4,now()) RETURNING id`
	var id int64
	if err := r.Q.QueryRow(ctx, q, e.BranchID, e.ActorID, e.Action, e.Details.JSON()).Scan(&id); err != nil {
		return 0, fmt.Errorf("op=activity.insert: %w", err)
	}
	return id, nil
}
