package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "vaultscribe:poll-lease:"

// extendScript refreshes the TTL only when the caller still owns the key.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// releaseScript deletes the key only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker stores leases as SETNX keys holding the owner token.
type RedisLocker struct {
	client redis.UniversalClient
	owner  string
}

// NewRedisLocker creates a holder with a fresh owner token.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, owner: uuid.NewString()}
}

// Acquire implements Locker.
func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	full := keyPrefix + key
	ok, err := r.client.SetNX(ctx, full, r.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if ok {
		return true, nil
	}
	extended, err := extendScript.Run(ctx, r.client, []string{full}, r.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("extend lease %s: %w", key, err)
	}
	return extended == 1, nil
}

// Release implements Locker.
func (r *RedisLocker) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, r.client, []string{keyPrefix + key}, r.owner).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	return nil
}
