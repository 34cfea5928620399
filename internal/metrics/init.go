package metrics

// InitializeMetrics pre-populates label combinations so dashboards and
// alerts see a zero series instead of absent data before the first event
// of a given kind occurs. Call once during boot, after promauto
// registration (package init) and before the HTTP listener starts.
func InitializeMetrics() {
	for _, db := range []string{"main", "settings", "history", "index"} {
		for _, file := range []string{"main", "wal", "shm"} {
			DBSizeBytes.WithLabelValues(db, file).Set(0)
			DBStorageErrors.WithLabelValues(db, file)
		}
		DBConnectionsOpen.WithLabelValues(db).Set(0)
		DBTransactionRetries.WithLabelValues(db)
		for _, outcome := range []string{"commit", "rollback"} {
			DBTransactionDuration.WithLabelValues(db, outcome)
		}
	}

	for _, op := range []string{"read", "write_full", "write_incremental", "search"} {
		for _, status := range []string{"ok", "error"} {
			DBQueryTotal.WithLabelValues("main", op, status)
		}
		DBQueryDuration.WithLabelValues("main", op)
	}

	for _, pool := range []string{"thumb", "indexing", "settings", "video"} {
		for _, status := range []string{"healthy", "unhealthy"} {
			WorkerPoolWorkers.WithLabelValues(pool, status).Set(0)
		}
		WorkerPoolTasksSubmitted.WithLabelValues(pool)
		for _, outcome := range []string{"success", "error", "timeout"} {
			WorkerPoolTasksCompleted.WithLabelValues(pool, outcome)
		}
		WorkerPoolQueueDepth.WithLabelValues(pool).Set(0)
		WorkerPoolRestarts.WithLabelValues(pool)
		WorkerPoolDegraded.WithLabelValues(pool).Set(0)
	}
	for _, pool := range []string{"thumb", "video", "index"} {
		SchedulerSuggestedConcurrency.WithLabelValues(pool).Set(0)
	}

	for _, kind := range []string{"image", "video"} {
		for _, status := range []string{"success", "failed"} {
			ThumbnailGenerationsTotal.WithLabelValues(kind, status)
		}
		ThumbnailGenerationDuration.WithLabelValues(kind)
	}

	for _, trigger := range []string{"manual", "loop", "selfheal"} {
		ThumbnailBackfillBatches.WithLabelValues(trigger)
	}
	for _, status := range []string{"processed", "queued", "skipped"} {
		ThumbnailBackfillFilesTotal.WithLabelValues(status).Set(0)
	}

	for _, outcome := range []string{"completed", "timed_out", "worker_exit"} {
		HLSBatchesTotal.WithLabelValues(outcome)
	}
	for _, status := range []string{"success", "skipped", "failed"} {
		HLSFilesTotal.WithLabelValues(status)
	}

	for _, outcome := range []string{"completed", "paused", "aborted"} {
		IndexerRunsTotal.WithLabelValues(outcome)
	}
	for _, t := range []string{"album", "photo", "video"} {
		IndexerItemsUpserted.WithLabelValues(t)
		CatalogItemsTotal.WithLabelValues(t).Set(0)
	}
	for _, t := range []string{"add", "unlink", "addDir", "unlinkDir"} {
		IndexerChangeEventsTotal.WithLabelValues(t)
	}

	for _, task := range []string{"startup-index-rebuild", "startup-backfill", "thumbnail-reconcile", "hls-backfill", "hls-cleanup", "db-maintenance"} {
		for _, outcome := range []string{"success", "error", "timeout", "reschedule_budget", "reschedule_lock"} {
			OrchestratorTaskRuns.WithLabelValues(task, outcome)
		}
		OrchestratorTaskDuration.WithLabelValues(task)
	}
	for _, category := range []string{"index-maintenance", "thumb-maintenance", "hls-maintenance", "misc"} {
		OrchestratorLockHeld.WithLabelValues(category).Set(0)
		OrchestratorLockContention.WithLabelValues(category)
	}

	for _, topic := range []string{"item-added", "item-removed", "thumbnail-generated", "hls-generated", "index-progress"} {
		EventBusPublished.WithLabelValues(topic)
		EventBusHandlerErrors.WithLabelValues(topic)
		EventBusHandlersRemoved.WithLabelValues(topic)
	}

	for _, op := range []string{"stat", "readdir", "open", "write"} {
		for _, volume := range []string{"photos", "data", "thumbs", "hls"} {
			FilesystemRetryAttempts.WithLabelValues(op, volume)
			FilesystemRetrySuccess.WithLabelValues(op, volume)
			FilesystemRetryFailures.WithLabelValues(op, volume)
			FilesystemStaleErrors.WithLabelValues(op, volume)
			FilesystemRetryDuration.WithLabelValues(op, volume)
			FilesystemOperationDuration.WithLabelValues(volume, op)
			FilesystemOperationErrors.WithLabelValues(volume, op)
		}
	}
}
