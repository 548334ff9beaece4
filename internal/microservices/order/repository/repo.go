package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

type Repository struct {
	OrderRepo   OrderRepositoryInterface
	Idempotency IdempotencyStoreInterface
}

func New(pool *pgxpool.Pool, rdb *goredis.Client) *Repository {
	return &Repository{
		OrderRepo:   NewOrderRepository(pool),
		Idempotency: NewRedisIdempotencyStore(rdb),
	}
}
