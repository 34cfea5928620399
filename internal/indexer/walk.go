package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"photonix-core/internal/catalog"
	"photonix-core/internal/filesystem"
	"photonix-core/internal/logging"
	"photonix-core/internal/mediatypes"
	"photonix-core/internal/metrics"
)

const (
	fullWalkBatchSize = 1000
	writeTestSentinel = ".photonix-write-test"
)

var skipPrefixes = []string{"@eaDir", ".tmp", "temp_opt_"}

func shouldSkipName(name string) bool {
	if name == writeTestSentinel {
		return true
	}
	for _, p := range skipPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// FullWalkResult summarizes one RunFullWalk call.
type FullWalkResult struct {
	Items  int64
	Albums int64
	Errors int64
}

type dirJob struct {
	relPath string
}

// batchAccumulator collects upserts across concurrent walker goroutines and
// flushes them in WithTransaction batches of up to fullWalkBatchSize,
// updating the resume pointer after each flush. A non-empty resumeFrom acts
// as a lexical skip threshold: entries at or before it are assumed already
// indexed by a prior interrupted walk and are not re-upserted, though the
// walk still descends into every directory to discover anything new.
type batchAccumulator struct {
	mu         sync.Mutex
	items      []*catalog.Item
	reg        *catalog.Registry
	resumeFrom string
	last       atomic.Value
}

func newBatchAccumulator(reg *catalog.Registry, resumeFrom string) *batchAccumulator {
	acc := &batchAccumulator{reg: reg, resumeFrom: resumeFrom}
	acc.last.Store(resumeFrom)
	return acc
}

func (b *batchAccumulator) skip(path string) bool {
	return b.resumeFrom != "" && path <= b.resumeFrom
}

func (b *batchAccumulator) add(ctx context.Context, item *catalog.Item) error {
	if b.skip(item.Path) {
		return nil
	}
	b.mu.Lock()
	b.items = append(b.items, item)
	var toFlush []*catalog.Item
	if len(b.items) >= fullWalkBatchSize {
		toFlush = b.items
		b.items = nil
	}
	b.mu.Unlock()
	if toFlush != nil {
		return b.flush(ctx, toFlush)
	}
	return nil
}

func (b *batchAccumulator) flush(ctx context.Context, items []*catalog.Item) error {
	if len(items) == 0 {
		return nil
	}
	err := b.reg.WithTransaction(ctx, catalog.Main, func(ctx context.Context) error {
		for _, item := range items {
			if err := b.reg.UpsertItem(ctx, item); err != nil {
				return err
			}
			metrics.IndexerItemsUpserted.WithLabelValues(string(item.Type)).Inc()
			if item.Type == catalog.TypePhoto || item.Type == catalog.TypeVideo {
				if err := b.reg.EnsureThumbStatusPending(ctx, item.Path, item.MTime); err != nil {
					return err
				}
			}
			if item.Type == catalog.TypeVideo {
				if err := b.reg.EnsureHLSStatusPending(ctx, item.Path); err != nil {
					return err
				}
			}
		}
		return nil
	}, "IMMEDIATE")
	if err != nil {
		return err
	}

	// index_progress lives in the "index" logical database, separate from
	// "main", so it can't join the transaction above; a crash between the
	// two just replays an already-upserted (idempotent) batch on resume.
	lastPath := items[len(items)-1].Path
	b.last.Store(lastPath)
	if err := b.reg.SetIndexProgress(ctx, lastPath, catalog.ProgressBuilding); err != nil {
		logging.Warn("indexer: failed to update resume pointer: %v", err)
	} else {
		metrics.IndexerResumePointerUpdates.Inc()
	}
	return nil
}

func (b *batchAccumulator) flushRemaining(ctx context.Context) error {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()
	return b.flush(ctx, items)
}

func (b *batchAccumulator) lastFlushed() string {
	s, _ := b.last.Load().(string)
	return s
}

// RunFullWalk traverses the photo root. Traversal is fanned out across
// idx.concurrency workers pulling from a self-feeding FIFO job queue —
// directories discovered mid-walk are pushed back onto it rather than
// recursed into — bounding memory by queue depth instead of call-stack
// depth. Directories are visited in queue order as workers free up, not
// depth-first. A fresh (non-resumed) walk that completes cleanly also
// deletes any item not touched during the walk, since that means it's no
// longer on disk; a resumed walk skips that cleanup pass, since the paths it
// skipped re-upserting still carry a stale updated_at and would otherwise
// look indistinguishable from genuinely deleted files.
func (idx *Indexer) RunFullWalk(ctx context.Context) (FullWalkResult, error) {
	idx.mu.Lock()
	if idx.running {
		idx.mu.Unlock()
		return FullWalkResult{}, nil
	}
	idx.running = true
	idx.mu.Unlock()
	defer func() {
		idx.mu.Lock()
		idx.running = false
		idx.mu.Unlock()
	}()

	budget := idx.sched.Budget()
	if !budget.AllowHeavyTasks {
		logging.Info("indexer: full walk postponed, budget currently disallows heavy tasks")
		return FullWalkResult{}, nil
	}
	walkConcurrency := idx.concurrency
	if suggested := budget.SuggestedConcurrency["index"]; suggested > 0 && suggested < walkConcurrency {
		walkConcurrency = suggested
	}

	metrics.IndexerIsRunning.Set(1)
	defer metrics.IndexerIsRunning.Set(0)

	start := time.Now()

	resume, err := idx.catalog.GetIndexProgress(ctx)
	if err != nil {
		return FullWalkResult{}, err
	}
	resumeFrom := resume.Value
	if resumeFrom != "" {
		logging.Info("indexer: resuming full walk after %q", resumeFrom)
	}
	if err := idx.catalog.SetIndexProgress(ctx, resumeFrom, catalog.ProgressBuilding); err != nil {
		logging.Warn("indexer: failed to mark walk building: %v", err)
	}

	acc := newBatchAccumulator(idx.catalog, resumeFrom)
	var result FullWalkResult

	var wg sync.WaitGroup
	jobs := make(chan dirJob, 4096)
	closed := make(chan struct{})
	go func() {
		wg.Wait()
		close(jobs)
		close(closed)
	}()

	wg.Add(1)
	jobs <- dirJob{relPath: ""}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < walkConcurrency; i++ {
		g.Go(func() error {
			for job := range jobs {
				if err := idx.processDir(gctx, job.relPath, acc, &result, &wg, jobs); err != nil {
					return err
				}
			}
			return nil
		})
	}

	walkErr := g.Wait()
	<-closed

	if flushErr := acc.flushRemaining(ctx); flushErr != nil && walkErr == nil {
		walkErr = flushErr
	}

	if walkErr != nil {
		if err := idx.catalog.SetIndexProgress(ctx, acc.lastFlushed(), catalog.ProgressPaused); err != nil {
			logging.Warn("indexer: failed to persist paused resume pointer: %v", err)
		}
		metrics.IndexerRunsTotal.WithLabelValues("aborted").Inc()
		logging.Error("indexer: full walk aborted: %v", walkErr)
		return result, walkErr
	}

	if resumeFrom == "" {
		deleted, delErr := idx.catalog.DeleteItemsNotSeenSince(ctx, start)
		if delErr != nil {
			logging.Error("indexer: cleanup of missing items failed: %v", delErr)
		} else if deleted > 0 {
			metrics.IndexerItemsDeleted.Add(float64(deleted))
			logging.Info("indexer: removed %d items no longer present on disk", deleted)
		}
	}

	if err := idx.catalog.SetIndexProgress(ctx, "", catalog.ProgressIdle); err != nil {
		logging.Warn("indexer: failed to reset resume pointer: %v", err)
	}

	metrics.IndexerRunsTotal.WithLabelValues("completed").Inc()
	metrics.IndexerLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.IndexerLastRunDuration.Set(time.Since(start).Seconds())

	logging.Info("indexer: full walk complete: %d items, %d albums in %v (errors: %d)",
		result.Items, result.Albums, time.Since(start), result.Errors)

	return result, nil
}

func (idx *Indexer) processDir(ctx context.Context, relPath string, acc *batchAccumulator, result *FullWalkResult, wg *sync.WaitGroup, jobs chan<- dirJob) error {
	defer wg.Done()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	absDir := filepath.Join(idx.photosDir, filepath.FromSlash(relPath))
	entries, err := filesystem.ReadDirWithRetry(absDir, filesystem.DefaultRetryConfig())
	if err != nil {
		atomic.AddInt64(&result.Errors, 1)
		logging.Warn("indexer: failed to read directory %s: %v", absDir, err)
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		if shouldSkipName(name) || entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		childRel := joinRel(relPath, name)

		if entry.IsDir() {
			info, err := entry.Info()
			if err != nil {
				atomic.AddInt64(&result.Errors, 1)
				continue
			}
			item := &catalog.Item{
				Path:       childRel,
				ParentPath: relPath,
				Type:       catalog.TypeAlbum,
				MTime:      info.ModTime(),
			}
			if err := acc.add(ctx, item); err != nil {
				return err
			}
			atomic.AddInt64(&result.Albums, 1)

			wg.Add(1)
			select {
			case jobs <- dirJob{relPath: childRel}:
			case <-ctx.Done():
				wg.Done()
				return ctx.Err()
			}
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		ft := mediatypes.GetFileType(ext)
		if ft != mediatypes.FileTypeImage && ft != mediatypes.FileTypeVideo {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			atomic.AddInt64(&result.Errors, 1)
			continue
		}
		itemType := catalog.TypePhoto
		if ft == mediatypes.FileTypeVideo {
			itemType = catalog.TypeVideo
		}
		item := &catalog.Item{
			Path:       childRel,
			ParentPath: relPath,
			Type:       itemType,
			MTime:      info.ModTime(),
			SizeBytes:  info.Size(),
		}
		if err := acc.add(ctx, item); err != nil {
			return err
		}
		atomic.AddInt64(&result.Items, 1)
	}
	return nil
}
