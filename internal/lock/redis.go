package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"photonix-core/internal/errs"
	"photonix-core/internal/logging"
)

// releaseScript performs a compare-and-delete: only the holder presenting
// the matching token can release the key, so a stale release from a worker
// that lost its lock to TTL expiry can't clobber a newer holder.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisLocker implements Locker against a shared Redis instance, keyed
// "photonix:lock:<name>".
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wraps an existing Redis client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func keyFor(name string) string {
	return "photonix:lock:" + name
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyFor(name), token, ttl).Result()
	if err != nil {
		return "", false, errs.Wrap(errs.Unavailable, "lock.redis_setnx", err)
	}
	return token, ok, nil
}

// Release implements Locker.
func (l *RedisLocker) Release(ctx context.Context, name string, token string) error {
	res, err := l.client.Eval(ctx, releaseScript, []string{keyFor(name)}, token).Result()
	if err != nil {
		return errs.Wrap(errs.Unavailable, "lock.redis_release", err)
	}
	if n, ok := res.(int64); ok && n == 0 {
		logging.Debug("lock: release of %q was a no-op (already expired or taken over)", name)
	}
	return nil
}
