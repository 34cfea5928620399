package lock

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, "index-maintenance", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}

	_, ok, err = l.Acquire(ctx, "index-maintenance", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second acquire to fail while lock is held")
	}

	if err := l.Release(ctx, "index-maintenance", token); err != nil {
		t.Fatalf("Release: %v", err)
	}

	_, ok, err = l.Acquire(ctx, "index-maintenance", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release to succeed, ok=%v err=%v", ok, err)
	}
}

func TestMemoryLockerExpiresAfterTTL(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	_, ok, err := l.Acquire(ctx, "hls-maintenance", 10*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("expected acquire to succeed, ok=%v err=%v", ok, err)
	}

	time.Sleep(20 * time.Millisecond)

	_, ok, err = l.Acquire(ctx, "hls-maintenance", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire to succeed after TTL expiry, ok=%v err=%v", ok, err)
	}
}

func TestMemoryLockerReleaseWithStaleTokenIsNoOp(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	token, _, _ := l.Acquire(ctx, "thumb-maintenance", time.Minute)

	if err := l.Release(ctx, "thumb-maintenance", "not-the-real-token"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	_, ok, _ := l.Acquire(ctx, "thumb-maintenance", time.Minute)
	if ok {
		t.Error("expected the original holder's lock to remain held after a stale-token release")
	}

	if err := l.Release(ctx, "thumb-maintenance", token); err != nil {
		t.Fatalf("Release: %v", err)
	}
}
