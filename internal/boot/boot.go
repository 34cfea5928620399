package boot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"photonix-core/internal/catalog"
	"photonix-core/internal/config"
	"photonix-core/internal/errs"
	"photonix-core/internal/eventbus"
	"photonix-core/internal/filesystem"
	"photonix-core/internal/hardware"
	"photonix-core/internal/hls"
	"photonix-core/internal/indexer"
	"photonix-core/internal/lock"
	"photonix-core/internal/logging"
	"photonix-core/internal/metrics"
	"photonix-core/internal/orchestrator"
	"photonix-core/internal/scheduler"
	"photonix-core/internal/thumbnail"
	"photonix-core/internal/workerpool"
)

const (
	delayedIntegrityCheckAfter = 2 * time.Minute
	metricsCollectInterval     = 30 * time.Second
)

// Runtime holds every long-lived component C10 starts, so main can build
// the HTTP handler surface on top of it and Shutdown can tear it back down.
type Runtime struct {
	Catalog      *catalog.Registry
	Bus          *eventbus.Bus
	Scheduler    *scheduler.Scheduler
	Indexer      *indexer.Indexer
	ThumbEngine  *thumbnail.Engine
	HLSEngine    *hls.Engine
	Orchestrator *orchestrator.Orchestrator

	thumbPool  *workerpool.Pool
	singletons *workerpool.SingletonRegistry
	metrics    *metrics.Collector
}

// Start runs the ordered boot sequence spec.md describes for C10: probe
// hardware, verify data directories are writable, open the catalog, wire
// every component, start the background workers, and kick off a delayed
// integrity check. The HTTP listener itself is opened by the caller once
// Start returns, since accepting connections is the last startup step.
func Start(ctx context.Context, cfg *config.Config, version string) (*Runtime, error) {
	logging.SetJSONMode(cfg.LogJSON)

	info := hardware.Detect()
	logging.Info("boot: hardware cpus=%d memGB=%.2f container=%v", info.CPUs, info.MemGB, info.IsContainer)

	for _, dir := range []string{cfg.DataDir, cfg.ThumbsDir, cfg.HLSDir} {
		if err := ensureWritable(dir); err != nil {
			return nil, err
		}
	}

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"photos": cfg.PhotosDir,
		"data":   cfg.DataDir,
		"thumbs": cfg.ThumbsDir,
		"hls":    cfg.HLSDir,
	}))

	reg, err := catalog.Open(ctx, catalog.Options{Dir: cfg.DataDir})
	if err != nil {
		return nil, fmt.Errorf("boot: open catalog: %w", err)
	}

	bus := eventbus.New()

	sched := scheduler.New(scheduler.DefaultInterval)
	sched.Start()
	budget := sched.Budget()

	thumbConcurrency := cfg.NumWorkers
	if thumbConcurrency <= 0 {
		thumbConcurrency = budget.SuggestedConcurrency["thumb"]
	}
	thumbPool := workerpool.NewPool("thumb", thumbConcurrency)

	limits := thumbnail.LimitsFromConfig(cfg)
	thumbEngine := thumbnail.New(reg, bus, thumbPool, sched, limits, cfg.PhotosDir, cfg.ThumbsDir)

	singletons := workerpool.NewSingletonRegistry()
	hlsEngine := hls.New(reg, bus, singletons, sched, cfg.PhotosDir, cfg.HLSDir)

	if err := thumbEngine.SelfHeal(ctx); err != nil {
		logging.Warn("boot: startup thumbnail self-heal failed, continuing: %v", err)
	}

	idx := indexer.New(reg, bus, sched, cfg.PhotosDir, cfg.IndexConcurrency)

	locker := lock.New()
	orch := orchestrator.New(locker, sched)
	orchestrator.RegisterBuiltinTasks(orch, reg, idx, thumbEngine, hlsEngine, cfg)
	orch.Start()

	collector := metrics.NewCollector(reg, reg.PathFor(catalog.Main), metricsCollectInterval)
	collector.SetStorageHealthChecker(reg)
	collector.SetHLSArtifactDir(cfg.HLSDir)
	collector.Start()
	metrics.InitializeMetrics()
	metrics.SetAppInfo(version, "unknown", runtime.Version())

	if err := idx.Start(ctx); err != nil {
		return nil, fmt.Errorf("boot: start indexer: %w", err)
	}

	rt := &Runtime{
		Catalog:      reg,
		Bus:          bus,
		Scheduler:    sched,
		Indexer:      idx,
		ThumbEngine:  thumbEngine,
		HLSEngine:    hlsEngine,
		Orchestrator: orch,
		thumbPool:    thumbPool,
		singletons:   singletons,
		metrics:      collector,
	}

	go rt.runDelayedIntegrityCheck()

	return rt, nil
}

func (rt *Runtime) runDelayedIntegrityCheck() {
	time.Sleep(delayedIntegrityCheckAfter)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.Catalog.CheckIntegrity(ctx); err != nil {
		logging.Error("boot: delayed integrity check failed: %v", err)
		return
	}
	logging.Info("boot: delayed integrity check passed")
}

// Shutdown reverses the startup sequence: pause the orchestrator so no new
// maintenance task starts, drain every worker pool, then close the
// database. The caller is responsible for calling http.Server.Shutdown
// before this, since stopping the HTTP listener is the first step in
// spec.md's shutdown order and this Runtime has no reference to the server.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	logging.Info("boot: pausing orchestrator")
	rt.Orchestrator.Stop(ctx)

	logging.Info("boot: stopping indexer")
	rt.Indexer.Stop()

	logging.Info("boot: draining worker pools")
	if err := rt.thumbPool.Shutdown(ctx); err != nil {
		logging.Warn("boot: thumbnail pool drain error: %v", err)
	}
	if err := rt.singletons.Shutdown(ctx); err != nil {
		logging.Warn("boot: singleton pool drain error: %v", err)
	}

	rt.Scheduler.Stop()
	rt.metrics.Stop()

	logging.Info("boot: closing database")
	if err := rt.Catalog.Close(); err != nil {
		return fmt.Errorf("boot: close catalog: %w", err)
	}
	return nil
}

// ensureWritable implements spec.md's directory-writability check: create
// the directory if missing, then write and unlink a sentinel file to prove
// it's actually writable, not just present.
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.External, "boot.mkdir", err).WithDetails(map[string]any{"dir": dir})
	}
	sentinel := filepath.Join(dir, ".photonix-write-test")
	if err := filesystem.WriteFileWithRetry(sentinel, []byte("ok"), 0o644, filesystem.DefaultRetryConfig()); err != nil {
		return errs.Wrap(errs.External, "boot.write_test", err).WithDetails(map[string]any{"dir": dir})
	}
	if err := os.Remove(sentinel); err != nil {
		logging.Warn("boot: failed to remove write-test sentinel in %s: %v", dir, err)
	}
	return nil
}
