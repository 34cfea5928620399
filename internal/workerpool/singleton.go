package workerpool

import (
	"context"
	"sync"
	"time"
)

// SingletonKind names one of the three lazily-spawned, at-most-one-instance
// workers: indexing, settings, video. video is additionally reference
// counted by the HLS engine so it stays alive across a batch.
type SingletonKind string

const (
	SingletonIndexing SingletonKind = "indexing"
	SingletonSettings SingletonKind = "settings"
	SingletonVideo    SingletonKind = "video"
)

const idleExitAfter = 2 * time.Minute

// SingletonRegistry lazily spawns the named single-instance pools on first
// use. It does not exit idle pools: a spawned pool stays up until Shutdown.
type SingletonRegistry struct {
	mu       sync.Mutex
	pools    map[SingletonKind]*Pool
	refcount map[SingletonKind]int
}

// NewSingletonRegistry creates an empty registry; pools are spawned lazily.
func NewSingletonRegistry() *SingletonRegistry {
	return &SingletonRegistry{
		pools:    make(map[SingletonKind]*Pool),
		refcount: make(map[SingletonKind]int),
	}
}

// Get returns the pool for kind, spawning it with concurrency 1 if it
// doesn't currently exist.
func (s *SingletonRegistry) Get(kind SingletonKind) *Pool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pools[kind]; ok {
		return p
	}
	p := NewPool(string(kind), 1)
	s.pools[kind] = p
	return p
}

// Acquire increments the video worker's reference count, used by the HLS
// engine to keep it alive across a batch of files.
func (s *SingletonRegistry) Acquire(kind SingletonKind) *Pool {
	s.mu.Lock()
	s.refcount[kind]++
	s.mu.Unlock()
	return s.Get(kind)
}

// Release decrements the reference count, never below zero. Reaching zero
// does not stop the pool; this registry runs no idle reaper.
func (s *SingletonRegistry) Release(kind SingletonKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refcount[kind] > 0 {
		s.refcount[kind]--
	}
}

// RefCount reports the current reference count for kind.
func (s *SingletonRegistry) RefCount(kind SingletonKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refcount[kind]
}

// Shutdown drains and terminates every pool currently spawned in the
// registry, for C10's graceful shutdown sequence.
func (s *SingletonRegistry) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	pools := make([]*Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	s.mu.Unlock()

	var firstErr error
	for _, p := range pools {
		if err := p.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
