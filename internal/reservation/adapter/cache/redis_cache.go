package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config mirrors spec §4.7's per-key TTLs.
type Config struct {
	StockTTL             time.Duration
	ActiveReservationTTL time.Duration
	PurchasedTTL         time.Duration
	RejectionTTL         time.Duration
}

// RedisCache implements service.Cache. The stock counter's increment and
// decrement are Lua scripts so a batch of post-commit side effects from
// concurrent allocator goroutines can never race each other into a
// negative cached value, grounded on the same EVAL-based atomic stock
// adjustment pattern used for the examples pack's flash-sale deduction.
// On a miss both scripts leave the key absent, so stock:{sku} is only
// ever created by SetStock, with its TTL.
type RedisCache struct {
	rdb redis.Cmdable
	cfg Config
}

func NewRedisCache(rdb redis.Cmdable, cfg Config) *RedisCache {
	return &RedisCache{rdb: rdb, cfg: cfg}
}

const decrementFloorZeroScript = `
	local key = KEYS[1]
	local delta = tonumber(ARGV[1])
	local raw = redis.call('GET', key)
	if not raw then
		return 0
	end
	local current = tonumber(raw)
	local next_value = current - delta
	if next_value < 0 then
		next_value = 0
	end
	redis.call('SET', key, next_value, 'KEEPTTL')
	return next_value
`

const incrementScript = `
	local key = KEYS[1]
	local delta = tonumber(ARGV[1])
	if redis.call('EXISTS', key) == 0 then
		return 0
	end
	local next_value = redis.call('INCRBY', key, delta)
	return next_value
`

func stockKey(sku string) string              { return "stock:" + sku }
func activeReservationKey(u, sku string) string { return "active_reservation:" + u + ":" + sku }
func purchasedKey(u, sku string) string       { return "user_purchased:" + u + ":" + sku }
func rejectionKey(idempotencyKey string) string { return "rejection:" + idempotencyKey }

func (c *RedisCache) GetStock(ctx context.Context, sku string) (int, bool, error) {
	val, err := c.rdb.Get(ctx, stockKey(sku)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

func (c *RedisCache) SetStock(ctx context.Context, sku string, count int) error {
	return c.rdb.Set(ctx, stockKey(sku), count, c.cfg.StockTTL).Err()
}

func (c *RedisCache) DecrementStock(ctx context.Context, sku string, delta int) (int, error) {
	res, err := c.rdb.Eval(ctx, decrementFloorZeroScript, []string{stockKey(sku)}, delta).Result()
	if err != nil {
		return 0, err
	}
	return int(res.(int64)), nil
}

func (c *RedisCache) IncrementStock(ctx context.Context, sku string, delta int) (int, error) {
	res, err := c.rdb.Eval(ctx, incrementScript, []string{stockKey(sku)}, delta).Result()
	if err != nil {
		return 0, err
	}
	return int(res.(int64)), nil
}

func (c *RedisCache) HasActiveReservation(ctx context.Context, userID, sku string) (bool, error) {
	n, err := c.rdb.Exists(ctx, activeReservationKey(userID, sku)).Result()
	return n > 0, err
}

func (c *RedisCache) SetActiveReservation(ctx context.Context, userID, sku string, ttlSeconds int) error {
	return c.rdb.Set(ctx, activeReservationKey(userID, sku), "1", time.Duration(ttlSeconds)*time.Second).Err()
}

func (c *RedisCache) ClearActiveReservation(ctx context.Context, userID, sku string) error {
	return c.rdb.Del(ctx, activeReservationKey(userID, sku)).Err()
}

func (c *RedisCache) HasPurchased(ctx context.Context, userID, sku string) (bool, error) {
	n, err := c.rdb.Exists(ctx, purchasedKey(userID, sku)).Result()
	return n > 0, err
}

func (c *RedisCache) SetPurchased(ctx context.Context, userID, sku string) error {
	ttl := c.cfg.PurchasedTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return c.rdb.Set(ctx, purchasedKey(userID, sku), "1", ttl).Err()
}

func (c *RedisCache) GetRejection(ctx context.Context, idempotencyKey string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, rejectionKey(idempotencyKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) SetRejection(ctx context.Context, idempotencyKey, reason string) error {
	ttl := c.cfg.RejectionTTL
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return c.rdb.Set(ctx, rejectionKey(idempotencyKey), reason, ttl).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
