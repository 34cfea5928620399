package indexer

import (
	"context"
	"sync"

	"photonix-core/internal/catalog"
	"photonix-core/internal/eventbus"
	"photonix-core/internal/logging"
	"photonix-core/internal/scheduler"
)

// Indexer is the Indexer (C7): full walk, incremental change processing via
// a filesystem watcher, and on-demand reconciliation over the photo root.
type Indexer struct {
	catalog     *catalog.Registry
	bus         *eventbus.Bus
	sched       *scheduler.Scheduler
	photosDir   string
	concurrency int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	watcher *watcher
}

// New constructs an Indexer. concurrency bounds the full walk's parallel
// directory fan-out; sched is consulted at the top of every walk and may
// clamp that fan-out further for the duration of the call.
func New(reg *catalog.Registry, bus *eventbus.Bus, sched *scheduler.Scheduler, photosDir string, concurrency int) *Indexer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Indexer{catalog: reg, bus: bus, sched: sched, photosDir: photosDir, concurrency: concurrency}
}

// Start launches the filesystem watcher and an initial full walk in the
// background. The returned error only reflects watcher setup failure; walk
// failures are logged, not returned, since Start is fire-and-forget.
func (idx *Indexer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	idx.mu.Lock()
	idx.cancel = cancel
	idx.mu.Unlock()

	w, err := newWatcher(idx.photosDir, func(records []ChangeRecord) {
		idx.applyChanges(context.Background(), records)
	})
	if err != nil {
		cancel()
		return err
	}
	idx.watcher = w
	go w.run()

	go func() {
		if _, err := idx.RunFullWalk(ctx); err != nil {
			logging.Error("indexer: initial full walk failed: %v", err)
		}
	}()

	return nil
}

// Stop cancels any in-flight walk and closes the watcher.
func (idx *Indexer) Stop() {
	idx.mu.Lock()
	cancel := idx.cancel
	idx.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if idx.watcher != nil {
		idx.watcher.close()
	}
}

// IsRunning reports whether a full walk is currently in progress.
func (idx *Indexer) IsRunning() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.running
}

// TriggerWalk manually starts a full walk in the background, a no-op if one
// is already running.
func (idx *Indexer) TriggerWalk() {
	go func() {
		if _, err := idx.RunFullWalk(context.Background()); err != nil {
			logging.Error("indexer: manually triggered walk failed: %v", err)
		}
	}()
}
