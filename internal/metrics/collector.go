package metrics

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"photonix-core/internal/filesystem"
	"photonix-core/internal/logging"
)

// StatsProvider reports catalog-derived counts for periodic gauge refresh.
type StatsProvider interface {
	GetStats() Stats
}

// StorageHealthChecker lets the catalog report per-file storage health and
// connection/mmap gauges on the same cadence as the rest of the collector.
type StorageHealthChecker interface {
	CheckStorageHealth()
	UpdateDBMetrics()
}

// Stats holds catalog item counts at a point in time.
type Stats struct {
	TotalAlbums int
	TotalPhotos int
	TotalVideos int
	TotalThumbs int
	FTSRows     int
}

// Collector periodically refreshes gauges that depend on external state:
// catalog counts, Go runtime memory, and on-disk artifact sizes.
type Collector struct {
	statsProvider        StatsProvider
	storageHealthChecker StorageHealthChecker
	dbPath               string
	hlsArtifactDir       string
	interval             time.Duration
	stopChan             chan struct{}
	lastGCCount          uint32
}

// NewCollector creates a new metrics collector polling at interval.
func NewCollector(provider StatsProvider, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// SetStorageHealthChecker wires the catalog's health checker into the collection loop.
func (c *Collector) SetStorageHealthChecker(checker StorageHealthChecker) {
	c.storageHealthChecker = checker
}

// SetHLSArtifactDir sets the directory whose size is reported as photonix_hls_artifact_size_bytes.
func (c *Collector) SetHLSArtifactDir(dir string) {
	c.hlsArtifactDir = dir
}

// Start begins the metrics collection loop in a background goroutine.
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop halts the metrics collection loop.
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectMemoryMetrics()
	c.collectDBSize()
	c.collectHLSArtifactSize()

	if c.storageHealthChecker != nil {
		c.storageHealthChecker.CheckStorageHealth()
		c.storageHealthChecker.UpdateDBMetrics()
	}

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	CatalogItemsTotal.WithLabelValues("album").Set(float64(stats.TotalAlbums))
	CatalogItemsTotal.WithLabelValues("photo").Set(float64(stats.TotalPhotos))
	CatalogItemsTotal.WithLabelValues("video").Set(float64(stats.TotalVideos))
	CatalogFTSRowCount.Set(float64(stats.FTSRows))

	logging.Debug("Metrics collected: albums=%d photos=%d videos=%d thumbs=%d fts_rows=%d",
		stats.TotalAlbums, stats.TotalPhotos, stats.TotalVideos, stats.TotalThumbs, stats.FTSRows)
}

func (c *Collector) collectMemoryMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	GoMemAllocBytes.Set(float64(memStats.Alloc))
	GoMemSysBytes.Set(float64(memStats.Sys))

	if memStats.NumGC > c.lastGCCount {
		GoGCRuns.Add(float64(memStats.NumGC - c.lastGCCount))
		c.lastGCCount = memStats.NumGC
	}

	GoGCPauseTotalSeconds.Add(float64(memStats.PauseTotalNs) / 1e9)
	if memStats.NumGC > 0 {
		idx := (memStats.NumGC + 255) % 256
		GoGCPauseLastSeconds.Set(float64(memStats.PauseNs[idx]) / 1e9)
	}

	GoGCCPUFraction.Set(memStats.GCCPUFraction)

	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
		GoMemLimit.Set(float64(limit))
	}
}

func (c *Collector) collectDBSize() {
	if c.dbPath == "" {
		return
	}

	retryConfig := filesystem.DefaultRetryConfig()

	if fileInfo, err := filesystem.StatWithRetry(c.dbPath, retryConfig); err == nil {
		DBSizeBytes.WithLabelValues("main", "main").Set(float64(fileInfo.Size()))
	} else if !os.IsNotExist(err) {
		logging.Debug("Failed to get database file size: %v", err)
	}

	if walInfo, err := filesystem.StatWithRetry(c.dbPath+"-wal", retryConfig); err == nil {
		DBSizeBytes.WithLabelValues("main", "wal").Set(float64(walInfo.Size()))
	} else {
		DBSizeBytes.WithLabelValues("main", "wal").Set(0)
	}

	if shmInfo, err := filesystem.StatWithRetry(c.dbPath+"-shm", retryConfig); err == nil {
		DBSizeBytes.WithLabelValues("main", "shm").Set(float64(shmInfo.Size()))
	} else {
		DBSizeBytes.WithLabelValues("main", "shm").Set(0)
	}
}

func (c *Collector) collectHLSArtifactSize() {
	if c.hlsArtifactDir == "" {
		return
	}

	start := time.Now()
	size, err := c.getDirSizeWithRetry(c.hlsArtifactDir)
	elapsed := time.Since(start)

	if err != nil {
		if !os.IsNotExist(err) {
			logging.Debug("Failed to get HLS artifact size (took %v): %v", elapsed, err)
		}
		HLSArtifactSizeBytes.Set(0)
		return
	}

	HLSArtifactSizeBytes.Set(float64(size))
}

// getDirSizeWithRetry walks a directory tree using retry-aware filesystem
// operations, tolerating the transient ESTALE errors common on network
// volumes. Each directory listing uses ReadDirWithRetry; each file stat
// uses StatWithRetry.
func (c *Collector) getDirSizeWithRetry(root string) (int64, error) {
	retryConfig := filesystem.DefaultRetryConfig()

	var size int64
	var walkDir func(dir string) error

	walkDir = func(dir string) error {
		entries, err := filesystem.ReadDirWithRetry(dir, retryConfig)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			fullPath := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				if err := walkDir(fullPath); err != nil {
					logging.Debug("Failed to walk subdirectory %s: %v", fullPath, err)
				}
				continue
			}

			info, err := filesystem.StatWithRetry(fullPath, retryConfig)
			if err != nil {
				logging.Debug("Failed to stat file %s: %v", fullPath, err)
				continue
			}
			size += info.Size()
		}
		return nil
	}

	err := walkDir(root)
	return size, err
}
