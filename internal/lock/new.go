package lock

import (
	"os"

	"github.com/redis/go-redis/v9"

	"photonix-core/internal/logging"
)

// New returns a RedisLocker backed by REDIS_ADDR if set, otherwise a
// MemoryLocker. This mirrors spec.md's requirement that a single Redis is
// used only for advisory locks and queues, never as the store of record,
// and that the system must run with no Redis at all (single-node mode).
func New() Locker {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		logging.Info("lock: REDIS_ADDR not set, using in-process advisory locks")
		return NewMemoryLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	logging.Info("lock: using Redis advisory locks at %s", addr)
	return NewRedisLocker(client)
}
