package repository

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"order-platform/internal/common/apperr"
)

const idempotencyTTL = 24 * time.Hour

// IdempotencyStoreInterface remembers which order a client's
// Idempotency-Key produced.
type IdempotencyStoreInterface interface {
	// Claim binds key to orderID. When the key is already bound it returns
	// the earlier order id and false.
	Claim(ctx context.Context, tenantID, key, orderID string) (string, bool, error)
	Forget(ctx context.Context, tenantID, key string) error
}

type RedisIdempotencyStore struct {
	rdb *goredis.Client
}

func NewRedisIdempotencyStore(rdb *goredis.Client) IdempotencyStoreInterface {
	return &RedisIdempotencyStore{rdb: rdb}
}

func idemKey(tenantID, key string) string { return "idem:" + tenantID + ":" + key }

func (s *RedisIdempotencyStore) Claim(ctx context.Context, tenantID, key, orderID string) (string, bool, error) {
	ok, err := s.rdb.SetNX(ctx, idemKey(tenantID, key), orderID, idempotencyTTL).Result()
	if err != nil {
		return "", false, apperr.Store("claim idempotency key", err)
	}
	if ok {
		return orderID, true, nil
	}
	prev, err := s.rdb.Get(ctx, idemKey(tenantID, key)).Result()
	if errors.Is(err, goredis.Nil) {
		// ключ истёк между SETNX и GET
		return s.Claim(ctx, tenantID, key, orderID)
	}
	if err != nil {
		return "", false, apperr.Store("read idempotency key", err)
	}
	return prev, false, nil
}

func (s *RedisIdempotencyStore) Forget(ctx context.Context, tenantID, key string) error {
	return apperr.Store("forget idempotency key", s.rdb.Del(ctx, idemKey(tenantID, key)).Err())
}
