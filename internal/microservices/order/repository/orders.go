package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"order-platform/internal/common/apperr"
	"order-platform/internal/domain"
)

type OrderRepositoryInterface interface {
	CreateOrder(ctx context.Context, o domain.Order) error
	GetOrder(ctx context.Context, tenantID, orderID string) (domain.Order, error)
	// TransitionStatus applies the change only if the order is still in
	// ch.From and appends the audit row in the same transaction.
	TransitionStatus(ctx context.Context, ch domain.StatusChange) (domain.Order, error)
	AssignChef(ctx context.Context, tenantID, orderID, chef string) error
	ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error)
	History(ctx context.Context, tenantID, orderID string) ([]domain.StatusRecord, error)
}

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) OrderRepositoryInterface {
	return &OrderRepository{pool: pool}
}

const orderColumns = `tenant_id, order_id, status, COALESCE(kitchen_id,''), items, total::float8, order_type,
	details, created_by, COALESCE(delivery_user_id,''), COALESCE(chef_assigned,''), created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o       domain.Order
		status  string
		items   []byte
		details []byte
	)
	err := row.Scan(&o.TenantID, &o.OrderID, &status, &o.KitchenID, &items, &o.Total, &o.OrderType,
		&details, &o.CreatedBy, &o.DeliveryUserID, &o.ChefAssigned, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return domain.Order{}, fmt.Errorf("decode items of %s: %w", o.OrderID, err)
	}
	if len(details) > 0 {
		_ = json.Unmarshal(details, &o.Details)
	}
	return o, nil
}

func (r *OrderRepository) CreateOrder(ctx context.Context, o domain.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return apperr.Wrap(apperr.BadRequest, "encode items", err)
	}
	var details []byte
	if o.Details != nil {
		if details, err = json.Marshal(o.Details); err != nil {
			return apperr.Wrap(apperr.BadRequest, "encode details", err)
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperr.Store("begin create order", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders
		    (tenant_id, order_id, status, kitchen_id, items, total, order_type, details, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, $6, $7, $8, $9, $10, $10)`,
		o.TenantID, o.OrderID, string(o.Status), o.KitchenID, items, o.Total, o.OrderType, details, o.CreatedBy, o.CreatedAt,
	); err != nil {
		return apperr.Store("insert order", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_log (tenant_id, order_id, from_status, to_status, changed_by, changed_at)
		VALUES ($1, $2, '', $3, $4, $5)`,
		o.TenantID, o.OrderID, string(o.Status), o.CreatedBy, o.CreatedAt,
	); err != nil {
		return apperr.Store("insert status log", err)
	}
	return apperr.Store("commit create order", tx.Commit(ctx))
}

func (r *OrderRepository) GetOrder(ctx context.Context, tenantID, orderID string) (domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id=$1 AND order_id=$2`, tenantID, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, apperr.Newf(apperr.OrderNotFound, "order %s", orderID)
	}
	return o, apperr.Store("get order", err)
}

func (r *OrderRepository) TransitionStatus(ctx context.Context, ch domain.StatusChange) (domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Order{}, apperr.Store("begin transition", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET
			status = $4,
			kitchen_id = COALESCE(NULLIF($5,''), kitchen_id),
			delivery_user_id = COALESCE(NULLIF($6,''), delivery_user_id),
			updated_at = now()
		WHERE tenant_id=$1 AND order_id=$2 AND status=$3
		RETURNING `+orderColumns,
		ch.TenantID, ch.OrderID, string(ch.From), string(ch.To), ch.KitchenID, ch.DeliveryUserID))
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		if _, gerr := r.GetOrder(ctx, ch.TenantID, ch.OrderID); gerr != nil {
			return domain.Order{}, gerr
		}
		return domain.Order{}, apperr.Newf(apperr.Conflict, "order %s is no longer %s", ch.OrderID, ch.From)
	}
	if err != nil {
		return domain.Order{}, apperr.Store("update status", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_log (tenant_id, order_id, from_status, to_status, changed_by, changed_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ch.TenantID, ch.OrderID, string(ch.From), string(ch.To), ch.ChangedBy, o.UpdatedAt, ch.Notes,
	); err != nil {
		return domain.Order{}, apperr.Store("insert status log", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, apperr.Store("commit transition", err)
	}
	return o, nil
}

func (r *OrderRepository) AssignChef(ctx context.Context, tenantID, orderID, chef string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET chef_assigned=$3, updated_at=now()
		WHERE tenant_id=$1 AND order_id=$2`, tenantID, orderID, chef)
	if err != nil {
		return apperr.Store("assign chef", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.OrderNotFound, "order %s", orderID)
	}
	return nil
}

func (r *OrderRepository) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	var (
		where = []string{"tenant_id=$1"}
		args  = []any{f.TenantID}
	)
	if len(f.Statuses) > 0 {
		st := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			st = append(st, string(s))
		}
		args = append(args, st)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.CreatedBy != "" {
		args = append(args, f.CreatedBy)
		where = append(where, fmt.Sprintf("created_by=$%d", len(args)))
	}
	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	q := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY created_at %s, order_id %s LIMIT $%d`,
		orderColumns, strings.Join(where, " AND "), dir, dir, len(args))
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Store("list orders", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperr.Store("scan order", err)
		}
		out = append(out, o)
	}
	return out, apperr.Store("list orders", rows.Err())
}

// History returns the audit trail oldest first.
func (r *OrderRepository) History(ctx context.Context, tenantID, orderID string) ([]domain.StatusRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT from_status, to_status, changed_by, changed_at, notes
		FROM order_status_log
		WHERE tenant_id=$1 AND order_id=$2
		ORDER BY id ASC`, tenantID, orderID)
	if err != nil {
		return nil, apperr.Store("history", err)
	}
	defer rows.Close()

	var out []domain.StatusRecord
	for rows.Next() {
		var (
			rec      domain.StatusRecord
			from, to string
		)
		if err := rows.Scan(&from, &to, &rec.ChangedBy, &rec.ChangedAt, &rec.Notes); err != nil {
			return nil, apperr.Store("scan history", err)
		}
		rec.From, rec.To = domain.Status(from), domain.Status(to)
		out = append(out, rec)
	}
	return out, apperr.Store("history", rows.Err())
}
