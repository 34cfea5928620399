package workerpool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSubmitRunsTaskAndDeliversResult(t *testing.T) {
	p := NewPool("test", 2)
	defer p.Shutdown(context.Background())

	_, future := p.Submit(Task{
		Run: func(ctx context.Context) (any, error) {
			return 42, nil
		},
	})

	select {
	case res := <-future:
		if res.Err != nil || res.Value != 42 {
			t.Errorf("unexpected result: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestSubmitPropagatesError(t *testing.T) {
	p := NewPool("test-err", 1)
	defer p.Shutdown(context.Background())

	wantErr := errors.New("boom")
	_, future := p.Submit(Task{
		Run: func(ctx context.Context) (any, error) {
			return nil, wantErr
		},
	})

	res := <-future
	if res.Err == nil {
		t.Error("expected an error result")
	}
}

func TestHealthReportsWorkers(t *testing.T) {
	p := NewPool("test-health", 3)
	defer p.Shutdown(context.Background())

	health := p.Health()
	if len(health) != 3 {
		t.Errorf("expected 3 workers, got %d", len(health))
	}
	for _, h := range health {
		if h.Status != HealthHealthy {
			t.Errorf("expected a freshly spawned worker to be healthy, got %s", h.Status)
		}
	}
}

func TestShutdownWaitsForInflightThenStops(t *testing.T) {
	p := NewPool("test-shutdown", 1)

	started := make(chan struct{})
	release := make(chan struct{})
	_, future := p.Submit(Task{
		Run: func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "done", nil
		},
	})

	<-started
	done := make(chan struct{})
	go func() {
		close(release)
		<-future
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	<-done
}

func TestDisposableWorkerReturnsValue(t *testing.T) {
	v, err := RunDisposable(context.Background(), time.Second, func(ctx context.Context) (any, error) {
		return "backfill-complete", nil
	})
	if err != nil || v != "backfill-complete" {
		t.Errorf("unexpected result: v=%v err=%v", v, err)
	}
}

func TestDisposableWorkerTimesOut(t *testing.T) {
	_, err := RunDisposable(context.Background(), 10*time.Millisecond, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err == nil {
		t.Error("expected a timeout error")
	}
}

func TestSingletonRegistryLazySpawnAndRefcount(t *testing.T) {
	r := NewSingletonRegistry()

	if r.RefCount(SingletonVideo) != 0 {
		t.Error("expected initial refcount of 0")
	}

	p := r.Acquire(SingletonVideo)
	if p == nil {
		t.Fatal("expected a pool")
	}
	if r.RefCount(SingletonVideo) != 1 {
		t.Errorf("expected refcount 1, got %d", r.RefCount(SingletonVideo))
	}

	same := r.Get(SingletonVideo)
	if same != p {
		t.Error("expected Get to return the same pool instance")
	}

	r.Release(SingletonVideo)
	if r.RefCount(SingletonVideo) != 0 {
		t.Errorf("expected refcount back to 0, got %d", r.RefCount(SingletonVideo))
	}
}
