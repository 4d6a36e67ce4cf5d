package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "lease:"

// Renew and Release compare the stored token first. An unconditional DEL
// could remove a lease that expired and was reacquired by another request.
var renewLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var releaseLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisLeaseManager struct {
	client *redis.Client
}

func NewRedisLeaseManager(client *redis.Client) *RedisLeaseManager {
	return &RedisLeaseManager{client: client}
}

func (r *RedisLeaseManager) Acquire(ctx context.Context, itemID string, ttl time.Duration) (string, bool, error) {
	key := leaseKeyPrefix + itemID
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

func (r *RedisLeaseManager) Renew(ctx context.Context, itemID, token string, extension time.Duration) (bool, error) {
	key := leaseKeyPrefix + itemID

	res, err := renewLeaseScript.Run(ctx, r.client, []string{key}, token, extension.Milliseconds()).Int()
	if err != nil {
		return false, err
	}

	return res == 1, nil
}

func (r *RedisLeaseManager) Release(ctx context.Context, itemID, token string) (bool, error) {
	key := leaseKeyPrefix + itemID

	res, err := releaseLeaseScript.Run(ctx, r.client, []string{key}, token).Int()
	if err != nil {
		return false, err
	}

	return res == 1, nil
}
