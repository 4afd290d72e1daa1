package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/infinitelocus/canteen/internal/port"
)

const (
	stockKeyPrefix    = "stock:"
	idempotencyPrefix = "idem:"
	sweepLockKey      = "sweep:leader"
	idempotencyKeyTTL = 24 * time.Hour
)

// The mirror is advisory, so a missing key must read as "unknown" rather
// than "sold out": -1 miss, 0 rejected, 1 reserved.
var reserveStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return -1
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// Releasing must never materialize a key from nothing: INCRBY on a missing
// key would seed the mirror with qty instead of the real stock.
var releaseStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 1 then
	redis.call('INCRBY', key, quantity)
end

return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) ReserveStock(ctx context.Context, itemID string, quantity int) (port.StockGate, error) {
	key := stockKeyPrefix + itemID

	result, err := reserveStockScript.Run(ctx, r.client, []string{key}, quantity).Int()
	if err != nil {
		return port.GateMiss, err
	}

	switch result {
	case 1:
		return port.GateReserved, nil
	case 0:
		return port.GateRejected, nil
	default:
		return port.GateMiss, nil
	}
}

func (r *RedisAdapter) ReleaseStock(ctx context.Context, itemID string, quantity int) error {
	key := stockKeyPrefix + itemID
	return releaseStockScript.Run(ctx, r.client, []string{key}, quantity).Err()
}

func (r *RedisAdapter) SetStock(ctx context.Context, itemID string, quantity int) error {
	key := stockKeyPrefix + itemID
	return r.client.Set(ctx, key, quantity, 0).Err()
}

func (r *RedisAdapter) DeleteStock(ctx context.Context, itemID string) error {
	key := stockKeyPrefix + itemID
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, sweepLockKey, 1, ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}
