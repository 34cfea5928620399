package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photonix-core/internal/catalog"
	"photonix-core/internal/config"
	"photonix-core/internal/filesystem"
	"photonix-core/internal/hls"
	"photonix-core/internal/indexer"
	"photonix-core/internal/logging"
	"photonix-core/internal/thumbnail"
)

const (
	thumbReconcileInterval = time.Hour
	hlsCleanupInterval     = 2 * time.Hour
	dbMaintenanceInterval  = 6 * time.Hour

	backfillBatchSize   = 200
	hlsCleanupBatchSize = 100
	maxHLSAttempts      = 3
)

// RegisterBuiltinTasks wires up six maintenance tasks: startup index
// rebuild, startup back-fill of missing artifact rows, periodic thumbnail
// reconcile, HLS back-fill of pending videos, periodic HLS cleanup, and
// database maintenance.
func RegisterBuiltinTasks(o *Orchestrator, reg *catalog.Registry, idx *indexer.Indexer, thumbEngine *thumbnail.Engine, hlsEngine *hls.Engine, cfg *config.Config) {
	if cfg.DisableStartupIndex {
		logging.Info("orchestrator: startup-index-rebuild disabled by DISABLE_STARTUP_INDEX")
	} else {
		o.RunWhenIdle("startup-index-rebuild", func(ctx context.Context) error {
			return runStartupIndexRebuild(ctx, reg, idx)
		}, Options{
			StartDelay:    time.Duration(cfg.IndexStartDelayMs) * time.Millisecond,
			RetryInterval: time.Duration(cfg.IndexRetryIntervalMs) * time.Millisecond,
			Timeout:       time.Duration(cfg.IndexTimeoutMs) * time.Millisecond,
			LockTTL:       time.Duration(cfg.IndexLockTTLSec) * time.Second,
			Category:      CategoryIndexMaintenance,
		})
	}

	o.RunWhenIdle("startup-backfill", func(ctx context.Context) error {
		_, err := thumbEngine.BackfillLoop(ctx, backfillBatchSize)
		return err
	}, Options{
		StartDelay:    time.Duration(cfg.IndexStartDelayMs)*time.Millisecond + 5*time.Second,
		RetryInterval: 5 * time.Minute,
		Timeout:       10 * time.Minute,
		LockTTL:       2 * time.Minute,
		Category:      CategoryThumbMaintenance,
	})

	o.RunWhenIdle("thumbnail-reconcile", func(ctx context.Context) error {
		return thumbEngine.SelfHeal(ctx)
	}, Options{
		StartDelay:    10 * time.Minute,
		RetryInterval: thumbReconcileInterval,
		Timeout:       5 * time.Minute,
		LockTTL:       2 * time.Minute,
		Category:      CategoryThumbMaintenance,
	})

	o.RunWhenIdle("hls-backfill", func(ctx context.Context) error {
		return runHLSBackfill(ctx, reg, hlsEngine)
	}, Options{
		StartDelay:    time.Duration(cfg.IndexStartDelayMs)*time.Millisecond + 10*time.Second,
		RetryInterval: 5 * time.Minute,
		Timeout:       time.Duration(cfg.HLSBatchTimeoutMs) * time.Millisecond,
		LockTTL:       2 * time.Minute,
		Category:      CategoryHLSMaintenance,
	})

	o.RunWhenIdle("hls-cleanup", func(ctx context.Context) error {
		return runHLSCleanup(ctx, reg, cfg.HLSDir)
	}, Options{
		StartDelay:    15 * time.Minute,
		RetryInterval: hlsCleanupInterval,
		Timeout:       5 * time.Minute,
		LockTTL:       2 * time.Minute,
		Category:      CategoryHLSMaintenance,
	})

	o.RunWhenIdle("db-maintenance", func(ctx context.Context) error {
		return reg.Analyze(ctx)
	}, Options{
		StartDelay:    20 * time.Minute,
		RetryInterval: dbMaintenanceInterval,
		Timeout:       2 * time.Minute,
		LockTTL:       5 * time.Minute,
		Category:      CategoryMisc,
	})
}

// runStartupIndexRebuild only actually walks when the catalog is empty or a
// prior walk left a resume pointer behind; otherwise it's a cheap no-op that
// just re-checks next tick, the same idiom as the teacher's periodicIndex.
func runStartupIndexRebuild(ctx context.Context, reg *catalog.Registry, idx *indexer.Indexer) error {
	count, err := reg.CountItems(ctx)
	if err != nil {
		return err
	}
	progress, err := reg.GetIndexProgress(ctx)
	if err != nil {
		return err
	}
	if count > 0 && progress.Value == "" {
		return nil
	}
	_, err = idx.RunFullWalk(ctx)
	return err
}

// runHLSBackfill samples videos still awaiting an HLS rendition and hands
// them to the HLS engine as one batch, the same pending-row-sampling idiom
// C5's thumbnail backfill uses.
func runHLSBackfill(ctx context.Context, reg *catalog.Registry, hlsEngine *hls.Engine) error {
	paths, err := reg.SamplePendingHLS(ctx, backfillBatchSize, maxHLSAttempts)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}
	_, err = hlsEngine.RunHlsBatch(ctx, paths, hls.BatchOptions{})
	return err
}

// runHLSCleanup removes output directories under hlsDir that no longer
// correspond to any hls_status row, i.e. leftovers from a video that was
// since deleted or renamed out from under the indexer.
func runHLSCleanup(ctx context.Context, reg *catalog.Registry, hlsDir string) error {
	expected, err := reg.ListHLSStatusPaths(ctx)
	if err != nil {
		return err
	}
	expectedDirs := make(map[string]struct{}, len(expected))
	for _, p := range expected {
		withoutExt := strings.TrimSuffix(p, filepath.Ext(p))
		expectedDirs[filepath.ToSlash(withoutExt)] = struct{}{}
	}

	removed := 0
	var walk func(abs, rel string) error
	walk = func(abs, rel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := filesystem.ReadDirWithRetry(abs, filesystem.DefaultRetryConfig())
		if err != nil {
			logging.Warn("orchestrator: hls-cleanup failed to list %s: %v", abs, err)
			return nil
		}

		hasPlaylist := false
		var subdirs []os.DirEntry
		for _, e := range entries {
			if e.IsDir() {
				subdirs = append(subdirs, e)
				continue
			}
			if e.Name() == "index.m3u8" {
				hasPlaylist = true
			}
		}

		if hasPlaylist {
			if _, ok := expectedDirs[rel]; !ok && rel != "" {
				if err := os.RemoveAll(abs); err != nil {
					logging.Warn("orchestrator: hls-cleanup failed to remove orphaned %s: %v", abs, err)
				} else {
					removed++
				}
				return nil
			}
		}

		for _, e := range subdirs {
			childRel := e.Name()
			if rel != "" {
				childRel = rel + "/" + e.Name()
			}
			if err := walk(filepath.Join(abs, e.Name()), childRel); err != nil {
				return err
			}
			if removed >= hlsCleanupBatchSize {
				return nil
			}
		}
		return nil
	}

	if err := walk(hlsDir, ""); err != nil {
		return err
	}
	if removed > 0 {
		logging.Info("orchestrator: hls-cleanup removed %d orphaned output directories", removed)
	}
	return nil
}
