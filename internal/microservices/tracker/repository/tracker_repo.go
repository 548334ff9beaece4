package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"order-platform/internal/common/apperr"
	"order-platform/internal/microservices/tracker/models"
)

type TrackerRepoInterface interface {
	// AppendEvent stores e once; a redelivered event id reports false.
	AppendEvent(ctx context.Context, e models.TimelineEvent) (bool, error)
	GetOrderTimeline(ctx context.Context, tenantID, orderID string, limit, offset int) ([]models.TimelineEvent, error)
}

type TrackerRepo struct {
	pool *pgxpool.Pool
}

func NewTrackerRepo(pool *pgxpool.Pool) *TrackerRepo { return &TrackerRepo{pool: pool} }

func (r *TrackerRepo) AppendEvent(ctx context.Context, e models.TimelineEvent) (bool, error) {
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return false, apperr.Wrap(apperr.BadRequest, "encode payload", err)
	}
	tag, err := r.pool.Exec(ctx, `
INSERT INTO order_events (event_id, tenant_id, order_id, event_type, payload, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (event_id) DO NOTHING
`, e.EventID, e.TenantID, e.OrderID, e.EventType, b, e.OccurredAt)
	if err != nil {
		return false, apperr.Store("append event", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *TrackerRepo) GetOrderTimeline(ctx context.Context, tenantID, orderID string, limit, offset int) ([]models.TimelineEvent, error) {
	rows, err := r.pool.Query(ctx, `
SELECT event_id, event_type, payload, occurred_at
FROM order_events WHERE tenant_id=$1 AND order_id=$2
ORDER BY occurred_at ASC, id ASC
LIMIT $3 OFFSET $4
`, tenantID, orderID, limit, offset)
	if err != nil {
		return nil, apperr.Store("timeline", err)
	}
	defer rows.Close()

	out := []models.TimelineEvent{}
	for rows.Next() {
		e := models.TimelineEvent{TenantID: tenantID, OrderID: orderID}
		var payloadRaw []byte
		if err := rows.Scan(&e.EventID, &e.EventType, &payloadRaw, &e.OccurredAt); err != nil {
			return nil, apperr.Store("scan timeline", err)
		}
		_ = json.Unmarshal(payloadRaw, &e.Payload)
		out = append(out, e)
	}
	return out, apperr.Store("timeline", rows.Err())
}
