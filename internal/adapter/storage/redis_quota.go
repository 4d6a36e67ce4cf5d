package storage

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

const quotaKeyPrefix = "quota:"

// Same single-round-trip rule as the stock script: two concurrent requests
// from one customer must not both observe "under quota" before either
// increments.
var admitQuotaScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

local current = tonumber(redis.call('GET', key) or '0')
if current + quantity > limit then
	return -1
end

return redis.call('INCRBY', key, quantity)
`)

// Floor at zero: a compensating release must never drive the counter
// negative even if it races a reconcile overwrite.
var releaseQuotaScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = tonumber(redis.call('GET', key) or '0')
if quantity >= current then
	redis.call('SET', key, 0)
	return 0
end

return redis.call('DECRBY', key, quantity)
`)

type RedisQuotaKeeper struct {
	client *redis.Client
}

func NewRedisQuotaKeeper(client *redis.Client) *RedisQuotaKeeper {
	return &RedisQuotaKeeper{client: client}
}

func quotaKey(saleID, customerID string) string {
	return quotaKeyPrefix + saleID + ":" + customerID
}

func (r *RedisQuotaKeeper) TryAdmit(ctx context.Context, customerID, saleID string, quantity, limit int) (int, bool, error) {
	key := quotaKey(saleID, customerID)

	total, err := admitQuotaScript.Run(ctx, r.client, []string{key}, quantity, limit).Int()
	if err != nil {
		return 0, false, err
	}
	if total < 0 {
		return 0, false, nil
	}

	return total, true, nil
}

func (r *RedisQuotaKeeper) Release(ctx context.Context, customerID, saleID string, quantity int) error {
	key := quotaKey(saleID, customerID)
	return releaseQuotaScript.Run(ctx, r.client, []string{key}, quantity).Err()
}

func (r *RedisQuotaKeeper) SetTotal(ctx context.Context, customerID, saleID string, total int) error {
	key := quotaKey(saleID, customerID)
	return r.client.Set(ctx, key, total, 0).Err()
}

func (r *RedisQuotaKeeper) ListCustomers(ctx context.Context, saleID string) ([]string, error) {
	prefix := quotaKey(saleID, "")

	var customers []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		customers = append(customers, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}
