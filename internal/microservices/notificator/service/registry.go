package service

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

// Registry tracks live push connections per tenant across processes.
type Registry interface {
	Add(ctx context.Context, tenantID, member string) error
	Remove(ctx context.Context, tenantID, member string) error
	Count(ctx context.Context, tenantID string) (int64, error)
}

// RedisRegistry keeps one set per tenant: ws:<tenant> holds
// "<instance>:<conn id>" members.
type RedisRegistry struct {
	rdb *goredis.Client
}

func NewRedisRegistry(rdb *goredis.Client) *RedisRegistry { return &RedisRegistry{rdb: rdb} }

func registryKey(tenantID string) string { return "ws:" + tenantID }

func (r *RedisRegistry) Add(ctx context.Context, tenantID, member string) error {
	return r.rdb.SAdd(ctx, registryKey(tenantID), member).Err()
}

func (r *RedisRegistry) Remove(ctx context.Context, tenantID, member string) error {
	return r.rdb.SRem(ctx, registryKey(tenantID), member).Err()
}

func (r *RedisRegistry) Count(ctx context.Context, tenantID string) (int64, error) {
	return r.rdb.SCard(ctx, registryKey(tenantID)).Result()
}
