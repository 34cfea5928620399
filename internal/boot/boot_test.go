package boot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photonix-core/internal/config"
)

func TestEnsureWritableCreatesAndValidatesDirectory(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "nested", "data")

	if err := ensureWritable(dir); err != nil {
		t.Fatalf("ensureWritable: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected %s to exist as a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected the write-test sentinel to be removed, found %v", entries)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                "0",
		PhotosDir:           t.TempDir(),
		DataDir:             t.TempDir(),
		ThumbsDir:           t.TempDir(),
		HLSDir:              t.TempDir(),
		NumWorkers:          1,
		VideoMaxConcurrency: 1,
		IndexConcurrency:    1,
		IndexStartDelayMs:   60_000,
		IndexRetryIntervalMs: 60_000,
		IndexTimeoutMs:       60_000,
		IndexLockTTLSec:      60,
		HLSBatchTimeoutMs:    60_000,
		SharpMaxPixels:          40_000_000,
		ThumbTargetWidth:        320,
		ThumbPixelThresholdHigh: 20_000_000,
		ThumbPixelThresholdMed:  8_000_000,
		ThumbQualityLow:         60,
		ThumbQualityMedium:      75,
		ThumbQualityHigh:        85,
		ThumbQualitySafe:        90,
	}
}

func TestStartWiresEveryComponentAndShutdownDrainsCleanly(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rt, err := Start(ctx, cfg, "test")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rt.Catalog == nil || rt.Bus == nil || rt.Scheduler == nil || rt.Indexer == nil ||
		rt.ThumbEngine == nil || rt.HLSEngine == nil || rt.Orchestrator == nil {
		t.Fatalf("expected every Runtime field populated, got %+v", rt)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
