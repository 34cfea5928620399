package thumbnail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"photonix-core/internal/catalog"
	"photonix-core/internal/errs"
	"photonix-core/internal/eventbus"
	"photonix-core/internal/logging"
	"photonix-core/internal/mediatypes"
	"photonix-core/internal/metrics"
	"photonix-core/internal/scheduler"
	"photonix-core/internal/workerpool"
)

// maxAttempts bounds how many times the backfill loop will retry a path
// stuck in 'failed', so a permanent validation error (oversized source)
// doesn't spin forever.
const maxAttempts = 3

// Result is EnsureThumbnail's return shape.
type Result struct {
	Status catalog.ArtifactStatus
	Path   string
}

// generatedEvent is published on eventbus.TopicThumbnailGenerated.
type generatedEvent struct {
	Path  string
	MTime time.Time
}

// Engine is the Thumbnail Engine (C5): on-demand generation with in-flight
// dedup, batch backfill, and the on-demand rate limiter.
type Engine struct {
	catalog   *catalog.Registry
	bus       *eventbus.Bus
	pool      *workerpool.Pool
	sched     *scheduler.Scheduler
	limits    Limits
	photosDir string
	thumbsDir string

	sf singleflight.Group
	rl *rateLimiter
}

// New constructs an Engine. pool is the thumbnail worker pool sized by C3's
// suggested concurrency for the "thumb" category; sched is consulted before
// every dispatch, not just at boot, so a budget that turns unhealthy mid-run
// is honored immediately.
func New(reg *catalog.Registry, bus *eventbus.Bus, pool *workerpool.Pool, sched *scheduler.Scheduler, limits Limits, photosDir, thumbsDir string) *Engine {
	return &Engine{
		catalog:   reg,
		bus:       bus,
		pool:      pool,
		sched:     sched,
		limits:    limits,
		photosDir: photosDir,
		thumbsDir: thumbsDir,
		rl:        newRateLimiter(),
	}
}

type artifactKind string

const (
	kindImage artifactKind = "image"
	kindVideo artifactKind = "video"
)

func kindFor(relPath string) (artifactKind, bool) {
	ext := strings.ToLower(filepath.Ext(relPath))
	switch mediatypes.GetFileType(ext) {
	case mediatypes.FileTypeImage:
		return kindImage, true
	case mediatypes.FileTypeVideo:
		return kindVideo, true
	default:
		return "", false
	}
}

// derivedBasePath computes <thumbs_root>/<rel with extension replaced>, per the
// data model's "derived artifact paths" rule: never persisted, always
// recomputed from path alone. The final on-disk extension for an image
// thumbnail depends on whether the encode path produced webp or (safe-mode
// / no-vips fallback) jpeg, so this returns the base path without
// extension; callers append the encodeResult's Ext.
func (e *Engine) derivedBasePath(relPath string, kind artifactKind) string {
	withoutExt := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	return filepath.Join(e.thumbsDir, filepath.FromSlash(withoutExt))
}

// existingArtifact looks for either possible extension (webp preferred,
// jpg fallback) of a previously generated image thumbnail, or the fixed
// .jpg extension for video thumbnails.
func (e *Engine) existingArtifact(relPath string, kind artifactKind) (string, bool) {
	base := e.derivedBasePath(relPath, kind)
	if kind == kindVideo {
		p := base + ".jpg"
		if fileExists(p) {
			return p, true
		}
		return "", false
	}
	for _, ext := range []string{".webp", ".jpg"} {
		p := base + ext
		if fileExists(p) {
			return p, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ActiveTasks reports how many thumbnail worker pool slots are currently
// processing a task, for the stats endpoint's "active task count".
func (e *Engine) ActiveTasks() int {
	active := 0
	for _, h := range e.pool.Health() {
		active += h.Inflight
	}
	return active
}

// ArtifactPath returns the on-disk path of relPath's generated thumbnail,
// if one currently exists, for handlers that need to serve the raw bytes.
func (e *Engine) ArtifactPath(relPath string) (string, bool) {
	kind, ok := kindFor(relPath)
	if !ok {
		return "", false
	}
	return e.existingArtifact(relPath, kind)
}

// EnsureThumbnail implements the C5 contract: returns immediately with the
// current status; a processing result means the caller should watch
// eventbus.TopicThumbnailGenerated (or poll) for completion.
func (e *Engine) EnsureThumbnail(ctx context.Context, absSrc, relPath string) (Result, error) {
	kind, ok := kindFor(relPath)
	if !ok {
		return Result{}, errs.New(errs.Validation, "thumbnail.unsupported_type", fmt.Sprintf("no thumbnail support for %s", relPath))
	}

	if path, ok := e.existingArtifact(relPath, kind); ok {
		return Result{Status: catalog.StatusExists, Path: path}, nil
	}

	if budget := e.sched.Budget(); !budget.AllowHeavyTasks {
		return Result{}, errs.New(errs.Unavailable, "thumbnail.budget_exceeded", "resource budget currently disallows heavy tasks")
	}

	if !e.rl.Allow() {
		return Result{}, errs.New(errs.Unavailable, "thumbnail.rate_limited", "on-demand thumbnail rate limit exceeded")
	}

	trace := eventbus.TraceFromContext(ctx)
	ch, shared := e.sf.DoChan(relPath, func() (any, error) {
		return e.generate(context.Background(), absSrc, relPath, kind, trace)
	})
	if shared {
		metrics.ThumbnailInFlightDedup.Inc()
	}
	go e.awaitCompletion(relPath, ch)

	return Result{Status: catalog.StatusProcessing}, nil
}

func (e *Engine) awaitCompletion(relPath string, ch <-chan singleflight.Result) {
	res := <-ch
	if res.Err != nil {
		logging.Warn("thumbnail: generation failed for %s: %v", relPath, res.Err)
	}
}

func (e *Engine) generate(ctx context.Context, absSrc, relPath string, kind artifactKind, trace *eventbus.TraceContext) (any, error) {
	if err := e.catalog.TransitionThumbStatus(ctx, relPath, catalog.StatusProcessing, ""); err != nil {
		logging.Error("thumbnail: failed to mark %s processing: %v", relPath, err)
	}

	start := time.Now()
	_, future := e.pool.Submit(workerpool.Task{
		Trace: trace,
		Run: func(taskCtx context.Context) (any, error) {
			return e.runGenerate(absSrc, relPath, kind)
		},
	})
	res := <-future
	metrics.ThumbnailGenerationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	if res.Err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(string(kind), "failed").Inc()
		if txErr := e.catalog.TransitionThumbStatus(ctx, relPath, catalog.StatusFailed, res.Err.Error()); txErr != nil {
			logging.Error("thumbnail: failed to mark %s failed: %v", relPath, txErr)
		}
		return nil, res.Err
	}

	metrics.ThumbnailGenerationsTotal.WithLabelValues(string(kind), "success").Inc()
	if err := e.catalog.TransitionThumbStatus(ctx, relPath, catalog.StatusExists, ""); err != nil {
		logging.Error("thumbnail: failed to mark %s exists: %v", relPath, err)
	}
	e.bus.Publish(eventbus.TopicThumbnailGenerated, generatedEvent{Path: relPath, MTime: time.Now()}, trace)
	return res.Value, nil
}

func (e *Engine) runGenerate(absSrc, relPath string, kind artifactKind) (any, error) {
	switch kind {
	case kindVideo:
		return e.runGenerateVideo(absSrc, relPath)
	default:
		return e.runGenerateImage(absSrc, relPath)
	}
}

func (e *Engine) runGenerateImage(absSrc, relPath string) (any, error) {
	width, height, err := sourcePixelCount(absSrc)
	if err != nil {
		return nil, errs.Wrap(errs.External, "thumbnail.probe", err)
	}
	if err := e.limits.validatePixels(width, height); err != nil {
		return nil, err
	}

	quality := e.limits.qualityFor(int64(width) * int64(height))
	result, err := encodeImage(absSrc, e.limits.TargetWidth, quality, decodeOpts{safeMode: false})
	if err != nil {
		logging.Warn("thumbnail: encode failed for %s, retrying in safe mode: %v", relPath, err)
		result, err = encodeImage(absSrc, e.limits.TargetWidth, e.limits.QualitySafe, decodeOpts{safeMode: true})
		if err != nil {
			return nil, errs.Wrap(errs.External, "thumbnail.encode", err)
		}
	}

	outPath := e.derivedBasePath(relPath, kindImage) + result.Ext
	if err := writeAtomic(outPath, result.Bytes); err != nil {
		return nil, errs.Wrap(errs.External, "thumbnail.write", err)
	}
	return outPath, nil
}

func writeAtomic(finalPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return err
	}
	tmp := finalPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, finalPath)
}

// BatchBackfillMissing selects up to limit paths whose thumb_status is
// pending/missing/failed (below maxAttempts) and whose source still
// exists, enqueues each through EnsureThumbnail, and returns a summary.
type BackfillSummary struct {
	Processed    int
	Queued       int
	Skipped      int
	FoundMissing int
}

func (e *Engine) BatchBackfillMissing(ctx context.Context, limit int) (BackfillSummary, error) {
	budget := e.sched.Budget()
	if !budget.AllowHeavyTasks {
		logging.Info("thumbnail: backfill batch postponed, budget currently disallows heavy tasks")
		return BackfillSummary{}, nil
	}
	if suggested := budget.SuggestedConcurrency["thumb"]; suggested > 0 && suggested < limit {
		limit = suggested
	}

	paths, err := e.catalog.SamplePendingOrMissingThumbs(ctx, limit, maxAttempts)
	if err != nil {
		return BackfillSummary{}, err
	}

	var summary BackfillSummary
	summary.FoundMissing = len(paths)
	for _, relPath := range paths {
		absSrc := filepath.Join(e.photosDir, filepath.FromSlash(relPath))
		if !fileExists(absSrc) {
			summary.Skipped++
			continue
		}
		if _, err := e.EnsureThumbnail(ctx, absSrc, relPath); err != nil {
			summary.Skipped++
			continue
		}
		summary.Queued++
		summary.Processed++
	}
	metrics.ThumbnailBackfillBatches.WithLabelValues("manual").Inc()
	metrics.ThumbnailBackfillFilesTotal.WithLabelValues("queued").Set(float64(summary.Queued))
	metrics.ThumbnailBackfillFilesTotal.WithLabelValues("skipped").Set(float64(summary.Skipped))
	return summary, nil
}

// BackfillLoop drives BatchBackfillMissing repeatedly until a pass finds
// nothing left to do, used by C8's startup back-fill task.
func (e *Engine) BackfillLoop(ctx context.Context, batchSize int) (int, error) {
	total := 0
	for {
		summary, err := e.BatchBackfillMissing(ctx, batchSize)
		if err != nil {
			return total, err
		}
		total += summary.Processed
		if summary.FoundMissing == 0 {
			return total, nil
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
	}
}
