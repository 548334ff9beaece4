package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS kitchens (
		tenant_id       TEXT NOT NULL,
		kitchen_id      TEXT NOT NULL,
		name            TEXT NOT NULL DEFAULT '',
		max_cooking     INT  NOT NULL CHECK (max_cooking > 0),
		current_cooking INT  NOT NULL DEFAULT 0,
		active          BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, kitchen_id),
		CHECK (current_cooking >= 0 AND current_cooking <= max_cooking)
	)`,
	`CREATE TABLE IF NOT EXISTS kitchen_reservations (
		tenant_id   TEXT NOT NULL,
		order_id    TEXT NOT NULL,
		kitchen_id  TEXT NOT NULL,
		reserved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		tenant_id        TEXT NOT NULL,
		order_id         TEXT NOT NULL,
		status           TEXT NOT NULL,
		kitchen_id       TEXT,
		items            JSONB NOT NULL,
		total            NUMERIC(12,2) NOT NULL,
		order_type       TEXT NOT NULL,
		details          JSONB,
		created_by       TEXT NOT NULL,
		delivery_user_id TEXT,
		chef_assigned    TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, order_id)
	)`,
	`CREATE INDEX IF NOT EXISTS orders_tenant_created_idx ON orders (tenant_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS order_status_log (
		id          BIGSERIAL PRIMARY KEY,
		tenant_id   TEXT NOT NULL,
		order_id    TEXT NOT NULL,
		from_status TEXT NOT NULL DEFAULT '',
		to_status   TEXT NOT NULL,
		changed_by  TEXT NOT NULL,
		changed_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		notes       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS order_status_log_order_idx ON order_status_log (tenant_id, order_id, id)`,
	`CREATE TABLE IF NOT EXISTS workers (
		tenant_id        TEXT NOT NULL,
		name             TEXT NOT NULL,
		type             TEXT NOT NULL,
		status           TEXT NOT NULL,
		orders_processed INT  NOT NULL DEFAULT 0,
		last_seen        TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tenant_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS order_events (
		id          BIGSERIAL PRIMARY KEY,
		event_id    TEXT NOT NULL UNIQUE,
		tenant_id   TEXT NOT NULL,
		order_id    TEXT NOT NULL DEFAULT '',
		event_type  TEXT NOT NULL,
		payload     JSONB NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS order_events_order_idx ON order_events (tenant_id, order_id, occurred_at)`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
