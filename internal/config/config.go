package config

import (
	"os"
	"strconv"
	"time"

	"photonix-core/internal/logging"
)

// Config holds every environment-driven setting read at boot. Fields are
// grouped by the component that consumes them.
type Config struct {
	// Core paths and listener.
	Port      string
	PhotosDir string
	DataDir   string
	ThumbsDir string
	HLSDir    string

	// C4 worker pool sizing overrides; 0 means "let C3 decide".
	NumWorkers          int
	SharpConcurrency    int
	VideoMaxConcurrency int

	// C7 indexer.
	IndexConcurrency     int
	IndexBatchSize       int
	IndexStartDelayMs    int
	IndexRetryIntervalMs int
	IndexTimeoutMs       int
	IndexLockTTLSec      int
	DisableStartupIndex  bool

	// C6 HLS engine.
	HLSBatchTimeoutMs int
	HLSInflightTTLMs  int

	// C5 thumbnail engine.
	SharpMaxPixels           int64
	ThumbTargetWidth         int
	ThumbPixelThresholdHigh  int64
	ThumbPixelThresholdMed   int64
	ThumbQualityLow          int
	ThumbQualityMedium       int
	ThumbQualityHigh         int
	ThumbQualitySafe         int
	VideoThumbTimeoutMs      int

	// C1 hardware probe overrides.
	DetectedCPUCount  int
	DetectedMemoryGB  float64

	// Ambient.
	LogLevel  string
	LogJSON   bool
	RedisAddr string
}

// Load reads Config from the environment, logging a warning and falling
// back to the default for any value that fails to parse.
func Load() *Config {
	c := &Config{
		Port:      getEnv("PORT", "8080"),
		PhotosDir: getEnv("PHOTOS_DIR", "/photos"),
		DataDir:   getEnv("DATA_DIR", "/data"),
		ThumbsDir: getEnv("THUMBS_DIR", "/data/thumbs"),
		HLSDir:    getEnv("HLS_DIR", "/data/hls"),

		NumWorkers:          getEnvInt("NUM_WORKERS", 0),
		SharpConcurrency:    getEnvInt("SHARP_CONCURRENCY", 0),
		VideoMaxConcurrency: getEnvInt("VIDEO_MAX_CONCURRENCY", 3),

		IndexConcurrency:     getEnvInt("INDEX_CONCURRENCY", 4),
		IndexBatchSize:       getEnvInt("INDEX_BATCH_SIZE", 1000),
		IndexStartDelayMs:    getEnvInt("INDEX_START_DELAY_MS", 2000),
		IndexRetryIntervalMs: getEnvInt("INDEX_RETRY_INTERVAL_MS", 30000),
		IndexTimeoutMs:       getEnvInt("INDEX_TIMEOUT_MS", 30*60*1000),
		IndexLockTTLSec:      getEnvInt("INDEX_LOCK_TTL_SEC", 600),
		DisableStartupIndex:  getEnvBool("DISABLE_STARTUP_INDEX", false),

		HLSBatchTimeoutMs: getEnvInt("HLS_BATCH_TIMEOUT_MS", 10*60*1000),
		HLSInflightTTLMs:  getEnvInt("HLS_INFLIGHT_TTL_MS", 30*60*1000),

		SharpMaxPixels:          getEnvInt64("SHARP_MAX_PIXELS", 270_000_000),
		ThumbTargetWidth:        getEnvInt("THUMB_TARGET_WIDTH", 500),
		ThumbPixelThresholdHigh: getEnvInt64("THUMB_PIXEL_THRESHOLD_HIGH", 8_000_000),
		ThumbPixelThresholdMed:  getEnvInt64("THUMB_PIXEL_THRESHOLD_MEDIUM", 2_000_000),
		ThumbQualityLow:         getEnvInt("THUMB_QUALITY_LOW", 65),
		ThumbQualityMedium:      getEnvInt("THUMB_QUALITY_MEDIUM", 70),
		ThumbQualityHigh:        getEnvInt("THUMB_QUALITY_HIGH", 80),
		ThumbQualitySafe:        getEnvInt("THUMB_QUALITY_SAFE", 60),
		VideoThumbTimeoutMs:     getEnvInt("VIDEO_THUMB_TIMEOUT_MS", 60000),

		DetectedCPUCount: getEnvInt("DETECTED_CPU_COUNT", 0),
		DetectedMemoryGB: getEnvFloat("DETECTED_MEMORY_GB", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogJSON:   getEnvBool("LOG_JSON", false),
		RedisAddr: getEnv("REDIS_ADDR", ""),
	}

	logging.Info("config: photos=%s data=%s thumbs=%s hls=%s port=%s",
		c.PhotosDir, c.DataDir, c.ThumbsDir, c.HLSDir, c.Port)

	return c
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("config: invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("config: invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		logging.Warn("config: invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("config: invalid float value for %s: %q, using default: %f", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("config: invalid duration value for %s: %q, using default: %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
