package hls

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photonix-core/internal/catalog"
	"photonix-core/internal/errs"
	"photonix-core/internal/eventbus"
	"photonix-core/internal/logging"
	"photonix-core/internal/mediatypes"
	"photonix-core/internal/metrics"
	"photonix-core/internal/scheduler"
	"photonix-core/internal/workerpool"
)

// maxAttempts bounds retries of a permanently-failing source, mirroring
// C5's backfill cap.
const maxAttempts = 3

const (
	defaultBatchTimeout = 10 * time.Minute
	defaultInflightTTL  = 30 * time.Minute
)

// taskStatus is the worker-reported outcome vocabulary from spec.md §4.6.
type taskStatus string

const (
	statusSuccess                 taskStatus = "success"
	statusSkippedHLSExists        taskStatus = "skipped_hls_exists"
	statusSkippedPermanentFailure taskStatus = "skipped_permanent_failure"
	statusError                   taskStatus = "error"
)

// BatchOptions configures RunHlsBatch's watchdog timeout.
type BatchOptions struct {
	Timeout time.Duration
}

// BatchResult is RunHlsBatch's return shape.
type BatchResult struct {
	Total   int
	Success int
	Failed  int
	Skipped int
}

type generatedEvent struct {
	Path      string
	DurationS float64
}

// Engine is the HLS / Video Engine (C6).
type Engine struct {
	catalog    *catalog.Registry
	bus        *eventbus.Bus
	singletons *workerpool.SingletonRegistry
	sched      *scheduler.Scheduler
	photosDir  string
	hlsDir     string

	inflight *inflightSet
}

// New constructs an Engine. singletons is C4's lazily-spawned pool registry;
// the video pool is acquired for the lifetime of each batch. sched is
// consulted at the top of every batch, not just at boot.
func New(reg *catalog.Registry, bus *eventbus.Bus, singletons *workerpool.SingletonRegistry, sched *scheduler.Scheduler, photosDir, hlsDir string) *Engine {
	return &Engine{
		catalog:    reg,
		bus:        bus,
		singletons: singletons,
		sched:      sched,
		photosDir:  photosDir,
		hlsDir:     hlsDir,
		inflight:   newInflightSet(defaultInflightTTL),
	}
}

type hlsTask struct {
	abs string
	rel string
}

// normalize drops anything not a known video extension and returns the
// {abs, rel} pairs under the photo root, per spec.md §4.6 step 1.
func (e *Engine) normalize(paths []string) []hlsTask {
	tasks := make([]hlsTask, 0, len(paths))
	for _, relPath := range paths {
		ext := strings.ToLower(filepath.Ext(relPath))
		if mediatypes.GetFileType(ext) != mediatypes.FileTypeVideo {
			continue
		}
		tasks = append(tasks, hlsTask{
			abs: filepath.Join(e.photosDir, filepath.FromSlash(relPath)),
			rel: relPath,
		})
	}
	return tasks
}

func (e *Engine) playlistPath(relPath string) string {
	withoutExt := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return filepath.Join(e.hlsDir, filepath.FromSlash(withoutExt), "index.m3u8")
}

// ArtifactDir returns the directory holding relPath's playlist and segment
// files, for the HTTP layer to serve index.m3u8/*.ts from directly.
func (e *Engine) ArtifactDir(relPath string) string {
	withoutExt := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return filepath.Join(e.hlsDir, filepath.FromSlash(withoutExt))
}

// RunHlsBatch implements the C6 contract described in spec.md §4.6.
func (e *Engine) RunHlsBatch(ctx context.Context, paths []string, opts BatchOptions) (BatchResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultBatchTimeout
	}

	candidates := e.normalize(paths)
	summary := BatchResult{Total: len(paths)}

	budget := e.sched.Budget()
	if !budget.AllowHeavyTasks {
		logging.Info("hls: batch postponed, budget currently disallows heavy tasks")
		summary.Skipped = len(paths)
		return summary, nil
	}
	if suggested := budget.SuggestedConcurrency["video"]; suggested > 0 && suggested < len(candidates) {
		logging.Info("hls: clamping batch from %d to %d candidates per suggested video concurrency", len(candidates), suggested)
		candidates = candidates[:suggested]
	}

	tasks := make([]hlsTask, 0, len(candidates))
	for _, c := range candidates {
		if e.inflight.markIfAbsent(c.rel) {
			tasks = append(tasks, c)
		} else {
			summary.Skipped++
			metrics.HLSInFlightDedup.Inc()
		}
	}
	summary.Skipped += len(paths) - len(candidates)

	if len(tasks) == 0 {
		metrics.HLSBatchesTotal.WithLabelValues("completed").Inc()
		return summary, nil
	}

	pool := e.singletons.Acquire(workerpool.SingletonVideo)
	defer e.singletons.Release(workerpool.SingletonVideo)

	type outcome struct {
		rel    string
		status taskStatus
		err    error
	}
	results := make(chan outcome, len(tasks))
	trace := eventbus.TraceFromContext(ctx)

	for _, t := range tasks {
		t := t
		go func() {
			status, err := e.runOne(pool, t, trace)
			e.inflight.clear(t.rel)
			results <- outcome{rel: t.rel, status: status, err: err}
		}()
	}

	watchdog := time.NewTimer(timeout)
	defer watchdog.Stop()

	pending := len(tasks)
	for pending > 0 {
		select {
		case r := <-results:
			pending--
			switch r.status {
			case statusSuccess:
				summary.Success++
			case statusSkippedHLSExists, statusSkippedPermanentFailure:
				summary.Skipped++
			default:
				summary.Failed++
				if r.err != nil {
					logging.Warn("hls: %s failed: %v", r.rel, r.err)
				}
			}
			if pending > 0 {
				if !watchdog.Stop() {
					<-watchdog.C
				}
				watchdog.Reset(timeout)
				metrics.HLSWatchdogResets.Inc()
			}

		case <-watchdog.C:
			summary.Failed += pending
			metrics.HLSBatchesTotal.WithLabelValues("timed_out").Inc()
			return summary, errs.New(errs.Timeout, "hls.batch_watchdog", "no progress from video worker within timeout")

		case <-ctx.Done():
			metrics.HLSBatchesTotal.WithLabelValues("worker_exit").Inc()
			return summary, ctx.Err()
		}
	}

	metrics.HLSBatchesTotal.WithLabelValues("completed").Inc()
	metrics.HLSFilesTotal.WithLabelValues("success").Add(float64(summary.Success))
	metrics.HLSFilesTotal.WithLabelValues("failed").Add(float64(summary.Failed))
	metrics.HLSFilesTotal.WithLabelValues("skipped").Add(float64(summary.Skipped))
	return summary, nil
}

func (e *Engine) runOne(pool *workerpool.Pool, t hlsTask, trace *eventbus.TraceContext) (taskStatus, error) {
	ctx := context.Background()

	if fileExists(e.playlistPath(t.rel)) {
		return statusSkippedHLSExists, nil
	}

	if status, err := e.catalog.GetHLSStatus(ctx, t.rel); err == nil {
		if status.Status == catalog.StatusFailed && status.Attempts >= maxAttempts {
			return statusSkippedPermanentFailure, nil
		}
	}

	if err := e.catalog.TransitionHLSStatus(ctx, t.rel, catalog.StatusProcessing, "", 0, ""); err != nil {
		logging.Error("hls: failed to mark %s processing: %v", t.rel, err)
	}

	start := time.Now()
	_, future := pool.Submit(workerpool.Task{
		Trace: trace,
		Run: func(taskCtx context.Context) (any, error) {
			return e.generate(t.abs, t.rel)
		},
	})
	res := <-future
	metrics.HLSSegmentDuration.Observe(time.Since(start).Seconds())

	if res.Err != nil {
		if txErr := e.catalog.TransitionHLSStatus(ctx, t.rel, catalog.StatusFailed, "", 0, res.Err.Error()); txErr != nil {
			logging.Error("hls: failed to mark %s failed: %v", t.rel, txErr)
		}
		return statusError, res.Err
	}

	durationS, _ := res.Value.(float64)
	playlist := e.playlistPath(t.rel)
	if err := e.catalog.TransitionHLSStatus(ctx, t.rel, catalog.StatusExists, playlist, durationS, ""); err != nil {
		logging.Error("hls: failed to mark %s exists: %v", t.rel, err)
	}
	e.bus.Publish(eventbus.TopicHLSGenerated, generatedEvent{Path: t.rel, DurationS: durationS}, trace)
	return statusSuccess, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (e *Engine) generate(absSrc, relPath string) (any, error) {
	withoutExt := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	outDir := filepath.Join(e.hlsDir, filepath.FromSlash(withoutExt))

	ctx, cancel := context.WithTimeout(context.Background(), defaultBatchTimeout)
	defer cancel()

	durationS, err := errs.Retry(ctx, errs.DefaultRetryConfig(), "hls.probe", func() (float64, error) {
		return probeDuration(ctx, absSrc)
	})
	if err != nil {
		return nil, err
	}

	if _, err := errs.Retry(ctx, errs.DefaultRetryConfig(), "hls.transcode", func() (struct{}, error) {
		return struct{}{}, generateSegments(ctx, absSrc, outDir)
	}); err != nil {
		return nil, err
	}
	return durationS, nil
}
