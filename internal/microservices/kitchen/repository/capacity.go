package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"order-platform/internal/common/apperr"
	"order-platform/internal/domain"
)

type ReserveResult int

const (
	// Granted: a new unit was taken.
	Granted ReserveResult = iota
	// Held: the order already holds a unit; nothing changed.
	Held
	// Full: the kitchen is at max_cooking or inactive.
	Full
)

func (r ReserveResult) String() string {
	switch r {
	case Granted:
		return "granted"
	case Held:
		return "held"
	default:
		return "full"
	}
}

// Reservation is the outcome of Reserve. KitchenID is the kitchen holding the
// unit, which for Held may differ from the one asked for.
type Reservation struct {
	Result    ReserveResult
	KitchenID string
}

type CapacityRepositoryInterface interface {
	CreateKitchen(ctx context.Context, k domain.Kitchen) (domain.Kitchen, error)
	GetKitchen(ctx context.Context, tenantID, kitchenID string) (domain.Kitchen, error)
	ListKitchens(ctx context.Context, tenantID string) ([]domain.Kitchen, error)

	// Reserve takes one unit for the order if the kitchen has room.
	// Idempotent per order.
	Reserve(ctx context.Context, tenantID, kitchenID, orderID string) (Reservation, error)
	// Release gives the order's unit back. false means there was nothing to
	// release (duplicate or out-of-order call).
	Release(ctx context.Context, tenantID, kitchenID, orderID string) (bool, error)
}

type CapacityRepository struct {
	pool *pgxpool.Pool
}

func NewCapacityRepository(pool *pgxpool.Pool) CapacityRepositoryInterface {
	return &CapacityRepository{pool: pool}
}

const kitchenColumns = `tenant_id, kitchen_id, name, max_cooking, current_cooking, active, created_at, updated_at`

func scanKitchen(row pgx.Row) (domain.Kitchen, error) {
	var k domain.Kitchen
	err := row.Scan(&k.TenantID, &k.KitchenID, &k.Name, &k.MaxCooking, &k.CurrentCooking, &k.Active, &k.CreatedAt, &k.UpdatedAt)
	return k, err
}

func (r *CapacityRepository) CreateKitchen(ctx context.Context, k domain.Kitchen) (domain.Kitchen, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO kitchens (tenant_id, kitchen_id, name, max_cooking, current_cooking, active)
		VALUES ($1, $2, $3, $4, 0, TRUE)
		ON CONFLICT (tenant_id, kitchen_id) DO NOTHING
		RETURNING `+kitchenColumns,
		k.TenantID, k.KitchenID, k.Name, k.MaxCooking)
	out, err := scanKitchen(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Kitchen{}, apperr.Newf(apperr.Conflict, "kitchen %s already exists", k.KitchenID)
	}
	return out, apperr.Store("create kitchen", err)
}

func (r *CapacityRepository) GetKitchen(ctx context.Context, tenantID, kitchenID string) (domain.Kitchen, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+kitchenColumns+` FROM kitchens WHERE tenant_id=$1 AND kitchen_id=$2`, tenantID, kitchenID)
	k, err := scanKitchen(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Kitchen{}, apperr.Newf(apperr.KitchenNotFound, "kitchen %s", kitchenID)
	}
	return k, apperr.Store("get kitchen", err)
}

// ListKitchens returns the tenant's kitchens in registration order.
func (r *CapacityRepository) ListKitchens(ctx context.Context, tenantID string) ([]domain.Kitchen, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+kitchenColumns+` FROM kitchens
		WHERE tenant_id=$1
		ORDER BY created_at, kitchen_id`, tenantID)
	if err != nil {
		return nil, apperr.Store("list kitchens", err)
	}
	defer rows.Close()

	var out []domain.Kitchen
	for rows.Next() {
		k, err := scanKitchen(rows)
		if err != nil {
			return nil, apperr.Store("scan kitchen", err)
		}
		out = append(out, k)
	}
	return out, apperr.Store("list kitchens", rows.Err())
}

func (r *CapacityRepository) Reserve(ctx context.Context, tenantID, kitchenID, orderID string) (Reservation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Reservation{}, apperr.Store("begin reserve", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// одна строка на заказ: повторный Reserve ничего не увеличивает
	tag, err := tx.Exec(ctx, `
		INSERT INTO kitchen_reservations (tenant_id, order_id, kitchen_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, order_id) DO NOTHING`, tenantID, orderID, kitchenID)
	if err != nil {
		return Reservation{}, apperr.Store("insert reservation", err)
	}
	if tag.RowsAffected() == 0 {
		var held string
		if err := tx.QueryRow(ctx, `
			SELECT kitchen_id FROM kitchen_reservations WHERE tenant_id=$1 AND order_id=$2`,
			tenantID, orderID).Scan(&held); err != nil {
			return Reservation{}, apperr.Store("read reservation", err)
		}
		return Reservation{Result: Held, KitchenID: held}, apperr.Store("commit reserve", tx.Commit(ctx))
	}

	tag, err = tx.Exec(ctx, `
		UPDATE kitchens SET current_cooking = current_cooking + 1, updated_at = now()
		WHERE tenant_id=$1 AND kitchen_id=$2 AND active AND current_cooking < max_cooking`,
		tenantID, kitchenID)
	if err != nil {
		return Reservation{}, apperr.Store("increment capacity", err)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		if _, err := r.GetKitchen(ctx, tenantID, kitchenID); err != nil {
			return Reservation{}, err
		}
		return Reservation{Result: Full, KitchenID: kitchenID}, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return Reservation{}, apperr.Store("commit reserve", err)
	}
	return Reservation{Result: Granted, KitchenID: kitchenID}, nil
}

func (r *CapacityRepository) Release(ctx context.Context, tenantID, kitchenID, orderID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, apperr.Store("begin release", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var held string
	err = tx.QueryRow(ctx, `
		DELETE FROM kitchen_reservations WHERE tenant_id=$1 AND order_id=$2
		RETURNING kitchen_id`, tenantID, orderID).Scan(&held)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Store("delete reservation", err)
	}
	if held != kitchenID {
		// запись о резерве главнее того, что прислал вызывающий
		kitchenID = held
	}

	tag, err := tx.Exec(ctx, `
		UPDATE kitchens SET current_cooking = current_cooking - 1, updated_at = now()
		WHERE tenant_id=$1 AND kitchen_id=$2 AND current_cooking > 0`, tenantID, kitchenID)
	if err != nil {
		return false, apperr.Store("decrement capacity", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, apperr.Store("commit release", err)
	}
	// счётчик уже на нуле: считаем повтором
	return tag.RowsAffected() > 0, nil
}
