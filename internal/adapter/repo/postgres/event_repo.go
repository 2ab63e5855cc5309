package postgres

import (
	"fmt"

	"github.com/breadworks/bakeops/internal/domain"
)

// EventRepo appends KPI events. Rows are append-only; aggregation happens
// at read time in reporting queries.
type EventRepo struct{ Q Querier }

func (r *EventRepo) Insert(ctx domain.Context, e domain.KpiEvent) (int64, error) {
	q := `INSERT INTO kpi_events (branch_id, actor_id, event_type, metric_key, event_value, duration_ms, metadata, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,now()) RETURNING id`
	var id int64
	err := r.Q.QueryRow(ctx, q, e.BranchID, e.ActorID, e.EventType, e.MetricKey,
		e.EventValue, e.DurationMS, e.Metadata.JSON()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("op=event.insert: %w", err)
	}
	return id, nil
}
