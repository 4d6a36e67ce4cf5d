package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const stockKeyPrefix = "stock:"

// Reserve must be a single round trip: check-then-decrement as two commands
// would let two callers both observe enough stock before either decrements.
var reserveStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return -1
end

current = tonumber(current)
if current < quantity then
	return -1
end

return redis.call('DECRBY', key, quantity)
`)

type RedisStockLedger struct {
	client *redis.Client
}

func NewRedisStockLedger(client *redis.Client) *RedisStockLedger {
	return &RedisStockLedger{client: client}
}

func (r *RedisStockLedger) TryReserve(ctx context.Context, itemID string, quantity int) (int, bool, error) {
	key := stockKeyPrefix + itemID

	remaining, err := reserveStockScript.Run(ctx, r.client, []string{key}, quantity).Int()
	if err != nil {
		return 0, false, err
	}
	if remaining < 0 {
		return 0, false, nil
	}

	return remaining, true, nil
}

func (r *RedisStockLedger) Release(ctx context.Context, itemID string, quantity int) error {
	key := stockKeyPrefix + itemID
	return r.client.IncrBy(ctx, key, int64(quantity)).Err()
}

func (r *RedisStockLedger) SetStock(ctx context.Context, itemID string, quantity int) error {
	key := stockKeyPrefix + itemID
	return r.client.Set(ctx, key, quantity, 0).Err()
}

func (r *RedisStockLedger) Remaining(ctx context.Context, itemID string) (int, error) {
	key := stockKeyPrefix + itemID

	remaining, err := r.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return remaining, nil
}
