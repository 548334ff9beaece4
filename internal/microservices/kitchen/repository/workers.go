package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"order-platform/internal/common/apperr"
	"order-platform/internal/domain"
)

// SystemTenant scopes workers that serve every tenant, like the allocator.
const SystemTenant = "_system"

type WorkerRepositoryInterface interface {
	RegisterOrFail(ctx context.Context, tenantID, name, wtype string) (bool, error)
	SetOffline(ctx context.Context, tenantID, name string) error
	Heartbeat(ctx context.Context, tenantID, name string) error

	// PickWorker returns the online worker of the type with the fewest
	// processed orders, or "" when nobody is online.
	PickWorker(ctx context.Context, tenantID, wtype string) (string, error)
	IncrementProcessed(ctx context.Context, tenantID, name string) error
	ListWorkers(ctx context.Context, tenantID string) ([]domain.Worker, error)
}

type WorkerRepository struct {
	pool *pgxpool.Pool
}

func NewWorkerRepository(pool *pgxpool.Pool) WorkerRepositoryInterface {
	return &WorkerRepository{pool: pool}
}

func (r *WorkerRepository) Heartbeat(ctx context.Context, tenantID, name string) error {
	_, err := r.pool.Exec(ctx, `UPDATE workers SET last_seen=now() WHERE tenant_id=$1 AND name=$2`, tenantID, name)
	return apperr.Store("heartbeat", err)
}

// RegisterOrFail marks the worker online. The bool is true when another
// process already holds the name.
func (r *WorkerRepository) RegisterOrFail(ctx context.Context, tenantID, name, wtype string) (bool, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM workers WHERE tenant_id=$1 AND name=$2`, tenantID, name).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = r.pool.Exec(ctx, `
			INSERT INTO workers(tenant_id,name,type,status,last_seen) VALUES ($1,$2,$3,'online',now())
			ON CONFLICT (tenant_id,name) DO NOTHING
		`, tenantID, name, wtype)
		return false, apperr.Store("register worker", err)
	case err != nil:
		return false, apperr.Store("read worker", err)
	default:
		if status == "online" && wtype == domain.WorkerAllocator {
			return true, fmt.Errorf("worker %s already online", name)
		}
		_, err = r.pool.Exec(ctx, `
			UPDATE workers SET type=$3, status='online', last_seen=now() WHERE tenant_id=$1 AND name=$2
		`, tenantID, name, wtype)
		return false, apperr.Store("register worker", err)
	}
}

func (r *WorkerRepository) SetOffline(ctx context.Context, tenantID, name string) error {
	_, err := r.pool.Exec(ctx, `UPDATE workers SET status='offline', last_seen=now() WHERE tenant_id=$1 AND name=$2`, tenantID, name)
	return apperr.Store("set offline", err)
}

func (r *WorkerRepository) PickWorker(ctx context.Context, tenantID, wtype string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `
		SELECT name FROM workers
		WHERE tenant_id=$1 AND type=$2 AND status='online'
		ORDER BY orders_processed, last_seen DESC, name
		LIMIT 1`, tenantID, wtype).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return name, apperr.Store("pick worker", err)
}

func (r *WorkerRepository) IncrementProcessed(ctx context.Context, tenantID, name string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE workers SET orders_processed = orders_processed + 1, last_seen=now()
		WHERE tenant_id=$1 AND name=$2`, tenantID, name)
	return apperr.Store("increment processed", err)
}

func (r *WorkerRepository) ListWorkers(ctx context.Context, tenantID string) ([]domain.Worker, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tenant_id, name, type, status, orders_processed, last_seen
		FROM workers WHERE tenant_id=$1 ORDER BY type, name`, tenantID)
	if err != nil {
		return nil, apperr.Store("list workers", err)
	}
	defer rows.Close()
	var out []domain.Worker
	for rows.Next() {
		var w domain.Worker
		if err := rows.Scan(&w.TenantID, &w.Name, &w.Type, &w.Status, &w.OrdersProcessed, &w.LastSeen); err != nil {
			return nil, apperr.Store("scan worker", err)
		}
		out = append(out, w)
	}
	return out, apperr.Store("list workers", rows.Err())
}
