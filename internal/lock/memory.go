package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is the in-process fallback used when no Redis is configured.
// It provides the same owner-token, TTL-based semantics as RedisLocker but
// only coordinates goroutines within this process.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewMemoryLocker creates an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]entry)}
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(_ context.Context, name string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if existing, ok := l.entries[name]; ok && existing.expiresAt.After(now) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.entries[name] = entry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Release implements Locker.
func (l *MemoryLocker) Release(_ context.Context, name string, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.entries[name]; ok && existing.token == token {
		delete(l.entries, name)
	}
	return nil
}
