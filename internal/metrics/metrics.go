package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photonix_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Catalog (C2) metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_catalog_queries_total",
			Help: "Total number of catalog queries",
		},
		[]string{"db", "operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photonix_catalog_query_duration_seconds",
			Help:    "Catalog query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"db", "operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photonix_catalog_transaction_duration_seconds",
			Help:    "Catalog transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"db", "outcome"}, // outcome: commit, rollback
	)

	DBTransactionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_catalog_transaction_retries_total",
			Help: "Total number of SQLITE_BUSY retries on the outer transaction",
		},
		[]string{"db"},
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photonix_catalog_rows_affected",
			Help:    "Rows affected per write operation",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photonix_catalog_connections_open",
			Help: "Number of open connections per logical database",
		},
		[]string{"db"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photonix_catalog_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"db", "file"}, // file: main, wal, shm
	)

	DBStorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_catalog_storage_errors_total",
			Help: "Storage health check failures per database file",
		},
		[]string{"db", "file"},
	)
)

// Adaptive scheduler (C3) metrics
var (
	SchedulerLoadOK = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_scheduler_load_ok",
			Help: "Whether 1-minute load average is within budget (1=ok)",
		},
	)

	SchedulerMemOK = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_scheduler_mem_ok",
			Help: "Whether heap usage is within budget (1=ok)",
		},
	)

	SchedulerAllowHeavyTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_scheduler_allow_heavy_tasks",
			Help: "Whether heavy background tasks are currently allowed",
		},
	)

	SchedulerSuggestedConcurrency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photonix_scheduler_suggested_concurrency",
			Help: "Suggested worker concurrency by pool name",
		},
		[]string{"pool"},
	)

	SchedulerSamples = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photonix_scheduler_samples_total",
			Help: "Total number of resource budget samples taken",
		},
	)
)

// Worker pool (C4) metrics
var (
	WorkerPoolWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photonix_workerpool_workers",
			Help: "Number of live workers per pool",
		},
		[]string{"pool", "status"}, // status: healthy, unhealthy
	)

	WorkerPoolTasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_workerpool_tasks_submitted_total",
			Help: "Total tasks submitted per pool",
		},
		[]string{"pool"},
	)

	WorkerPoolTasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_workerpool_tasks_completed_total",
			Help: "Total tasks completed per pool by outcome",
		},
		[]string{"pool", "outcome"}, // outcome: success, error, timeout
	)

	WorkerPoolQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photonix_workerpool_queue_depth",
			Help: "Current queue depth per pool",
		},
		[]string{"pool"},
	)

	WorkerPoolRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_workerpool_restarts_total",
			Help: "Total worker restarts per pool",
		},
		[]string{"pool"},
	)

	WorkerPoolDegraded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photonix_workerpool_degraded",
			Help: "Whether a pool is degraded after exhausting restart budget",
		},
		[]string{"pool"},
	)
)

// Thumbnail engine (C5) metrics
var (
	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"kind", "status"}, // kind: image, video; status: success, failed
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photonix_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	ThumbnailInFlightDedup = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photonix_thumbnail_inflight_dedup_total",
			Help: "Total requests that joined an in-flight generation instead of starting a new one",
		},
	)

	ThumbnailRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photonix_thumbnail_rate_limited_total",
			Help: "Total on-demand thumbnail requests rejected by the sliding-window limiter",
		},
	)

	ThumbnailBackfillBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_thumbnail_backfill_batches_total",
			Help: "Total backfill batches run",
		},
		[]string{"trigger"}, // trigger: manual, loop, selfheal
	)

	ThumbnailBackfillFilesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photonix_thumbnail_backfill_files",
			Help: "Files by status in the last backfill batch",
		},
		[]string{"status"}, // processed, queued, skipped
	)

	ThumbnailSelfHealResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photonix_thumbnail_selfheal_resets_total",
			Help: "Total thumb_status rows reset to pending by the self-heal sweep",
		},
	)
)

// HLS / video engine (C6) metrics
var (
	HLSBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_hls_batches_total",
			Help: "Total HLS batches run by outcome",
		},
		[]string{"outcome"}, // completed, timed_out, worker_exit
	)

	HLSFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_hls_files_total",
			Help: "Total files processed by HLS batches by status",
		},
		[]string{"status"}, // success, skipped, failed
	)

	HLSInFlightDedup = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photonix_hls_inflight_dedup_total",
			Help: "Total HLS requests deduped against an in-flight TTL entry",
		},
	)

	HLSSegmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photonix_hls_segment_write_duration_seconds",
			Help:    "Duration of one video's HLS generation task, from pool submit to completion",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	HLSWatchdogResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photonix_hls_watchdog_resets_total",
			Help: "Total times the batch watchdog timer was rearmed by progress",
		},
	)
)

// Indexer (C7) metrics
var (
	IndexerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_indexer_runs_total",
			Help: "Total number of indexer walk runs by outcome",
		},
		[]string{"outcome"}, // completed, paused, aborted
	)

	IndexerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_indexer_last_run_timestamp",
			Help: "Timestamp of the last indexer run",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_indexer_last_run_duration_seconds",
			Help: "Duration of the last indexer run in seconds",
		},
	)

	IndexerItemsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_indexer_items_upserted_total",
			Help: "Total items upserted by type",
		},
		[]string{"type"}, // album, photo, video
	)

	IndexerItemsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photonix_indexer_items_deleted_total",
			Help: "Total items deleted (reconciliation + unlink events)",
		},
	)

	IndexerChangeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_indexer_change_events_total",
			Help: "Total filesystem change records processed",
		},
		[]string{"type"}, // add, unlink, addDir, unlinkDir
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_indexer_running",
			Help: "Whether a full walk is currently in progress",
		},
	)

	IndexerResumePointerUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photonix_indexer_resume_pointer_updates_total",
			Help: "Total resume-pointer (last_processed_path) updates",
		},
	)
)

// Orchestrator (C8) metrics
var (
	OrchestratorTaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_orchestrator_task_runs_total",
			Help: "Total task executions by name and outcome",
		},
		[]string{"task", "outcome"}, // outcome: success, error, timeout, reschedule_budget, reschedule_lock
	)

	OrchestratorTaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photonix_orchestrator_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: []float64{0.01, 0.1, 1, 5, 30, 60, 300, 900},
		},
		[]string{"task"},
	)

	OrchestratorLockHeld = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photonix_orchestrator_lock_held",
			Help: "Whether this process holds the advisory lock for a category",
		},
		[]string{"category"},
	)

	OrchestratorLockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_orchestrator_lock_contention_total",
			Help: "Total times a lock acquisition attempt lost to another holder",
		},
		[]string{"category"},
	)
)

// Event bus (C9) metrics
var (
	EventBusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_eventbus_published_total",
			Help: "Total events published by topic",
		},
		[]string{"topic"},
	)

	EventBusHandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_eventbus_handler_errors_total",
			Help: "Total handler panics/errors by topic",
		},
		[]string{"topic"},
	)

	EventBusHandlersRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_eventbus_handlers_removed_total",
			Help: "Total handlers removed after repeated failure",
		},
		[]string{"topic"},
	)
)

// Filesystem metrics (retained from the teacher's NFS-resilience package)
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photonix_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds by volume and operation",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 5},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_filesystem_operation_errors_total",
			Help: "Filesystem operation errors by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_filesystem_retry_attempts_total",
			Help: "Total NFS-stale-handle retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_filesystem_retry_success_total",
			Help: "Total retries that eventually succeeded",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_filesystem_retry_failures_total",
			Help: "Total retries that exhausted their budget",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photonix_filesystem_stale_errors_total",
			Help: "Total ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photonix_filesystem_retry_duration_seconds",
			Help:    "Total duration of a retried operation including backoff",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"operation", "volume"},
	)
)

// Go runtime / memory metrics
var (
	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_go_mem_limit_bytes",
			Help: "Configured GOMEMLIMIT, if any",
		},
	)

	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_go_mem_alloc_bytes",
			Help: "Current heap allocation",
		},
	)

	GoMemSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_go_mem_sys_bytes",
			Help: "Total memory obtained from the OS",
		},
	)

	GoGCRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photonix_go_gc_runs_total",
			Help: "Total completed garbage collection cycles",
		},
	)

	GoGCPauseTotalSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photonix_go_gc_pause_total_seconds",
			Help: "Cumulative time spent in GC stop-the-world pauses",
		},
	)

	GoGCPauseLastSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_go_gc_pause_last_seconds",
			Help: "Duration of the most recent GC pause",
		},
	)

	GoGCCPUFraction = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_go_gc_cpu_fraction",
			Help: "Fraction of CPU time spent in garbage collection",
		},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_memory_usage_ratio",
			Help: "Heap usage as a ratio of the configured memory budget",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_memory_paused",
			Help: "Whether heavy processing is paused due to memory pressure",
		},
	)
)

// Catalog item counts, surfaced by the Collector
var (
	CatalogItemsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photonix_catalog_items_total",
			Help: "Total catalog items by type",
		},
		[]string{"type"}, // album, photo, video
	)

	CatalogFTSRowCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_catalog_fts_rows",
			Help: "Row count of the full-text search view",
		},
	)
)

// On-disk artifact size, surfaced by the Collector
var (
	HLSArtifactSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photonix_hls_artifact_size_bytes",
			Help: "Total size of generated HLS playlists and segments on disk",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "photonix_app_info",
			Help: "Application build information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric.
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
