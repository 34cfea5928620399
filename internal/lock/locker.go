package lock

import (
	"context"
	"time"

	"photonix-core/internal/errs"
)

// Locker is an advisory lock keyed by name, with owner-token
// compare-and-delete release semantics and a TTL so a crashed holder's
// lock eventually expires.
type Locker interface {
	// Acquire attempts to take the lock for name. Returns an owner token on
	// success; ok is false if another holder currently owns it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	// Release gives up the lock for name iff token still matches the
	// current holder (compare-and-delete). It is not an error to release a
	// lock that has already expired or been taken over by someone else —
	// Release simply becomes a no-op in that case.
	Release(ctx context.Context, name string, token string) error
}

// ErrNotHeld is returned by implementations that want to distinguish "lock
// already released/expired" from a genuine backend failure. Callers
// generally don't need to branch on it — Release is idempotent either way.
var ErrNotHeld = errs.New(errs.Conflict, "lock.not_held", "lock not held by this token")
