package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photonix-core/internal/catalog"
	"photonix-core/internal/eventbus"
)

func newTestIndexer(t *testing.T, photosDir string) (*Indexer, *catalog.Registry) {
	t.Helper()
	dataDir := t.TempDir()
	reg, err := catalog.Open(context.Background(), catalog.Options{Dir: dataDir})
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return New(reg, eventbus.New(), nil, photosDir, 2), reg
}

func writeFile(t *testing.T, path string, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRunFullWalkIndexesItems(t *testing.T) {
	photosDir := t.TempDir()
	writeFile(t, filepath.Join(photosDir, "2024", "a.jpg"), "a")
	writeFile(t, filepath.Join(photosDir, "2024", "b.mp4"), "b")
	writeFile(t, filepath.Join(photosDir, "2024", "notes.txt"), "skip me")
	if err := os.MkdirAll(filepath.Join(photosDir, "2024", "@eaDir"), 0o755); err != nil {
		t.Fatalf("mkdir @eaDir: %v", err)
	}
	writeFile(t, filepath.Join(photosDir, "2024", "@eaDir", "hidden.jpg"), "h")

	idx, reg := newTestIndexer(t, photosDir)
	ctx := context.Background()

	result, err := idx.RunFullWalk(ctx)
	if err != nil {
		t.Fatalf("RunFullWalk: %v", err)
	}
	if result.Items != 2 {
		t.Errorf("expected 2 items, got %d", result.Items)
	}
	if result.Albums != 1 {
		t.Errorf("expected 1 album, got %d", result.Albums)
	}

	photo, err := reg.GetItemByPath(ctx, "2024/a.jpg")
	if err != nil {
		t.Fatalf("GetItemByPath a.jpg: %v", err)
	}
	if photo.Type != catalog.TypePhoto {
		t.Errorf("expected photo type, got %s", photo.Type)
	}

	video, err := reg.GetItemByPath(ctx, "2024/b.mp4")
	if err != nil {
		t.Fatalf("GetItemByPath b.mp4: %v", err)
	}
	if video.Type != catalog.TypeVideo {
		t.Errorf("expected video type, got %s", video.Type)
	}

	if _, err := reg.GetItemByPath(ctx, "2024/@eaDir/hidden.jpg"); err == nil {
		t.Error("expected @eaDir contents to be skipped")
	}

	thumbStatus, err := reg.GetThumbStatus(ctx, "2024/a.jpg")
	if err != nil {
		t.Fatalf("GetThumbStatus: %v", err)
	}
	if thumbStatus.Status != catalog.StatusPending {
		t.Errorf("expected pending thumb status, got %s", thumbStatus.Status)
	}

	hlsStatus, err := reg.GetHLSStatus(ctx, "2024/b.mp4")
	if err != nil {
		t.Fatalf("GetHLSStatus: %v", err)
	}
	if hlsStatus.Status != catalog.StatusPending {
		t.Errorf("expected pending hls status, got %s", hlsStatus.Status)
	}
}

func TestRunFullWalkCleansUpDeletedItems(t *testing.T) {
	photosDir := t.TempDir()
	writeFile(t, filepath.Join(photosDir, "keep.jpg"), "k")
	writeFile(t, filepath.Join(photosDir, "gone.jpg"), "g")

	idx, reg := newTestIndexer(t, photosDir)
	ctx := context.Background()

	if _, err := idx.RunFullWalk(ctx); err != nil {
		t.Fatalf("first walk: %v", err)
	}

	if err := os.Remove(filepath.Join(photosDir, "gone.jpg")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	// updated_at is second-resolution; cross a second boundary so the
	// second walk's cutoff genuinely postdates the first walk's writes.
	time.Sleep(1100 * time.Millisecond)

	if _, err := idx.RunFullWalk(ctx); err != nil {
		t.Fatalf("second walk: %v", err)
	}

	if _, err := reg.GetItemByPath(ctx, "keep.jpg"); err != nil {
		t.Errorf("expected keep.jpg to survive, got %v", err)
	}
	if _, err := reg.GetItemByPath(ctx, "gone.jpg"); err == nil {
		t.Error("expected gone.jpg to be cleaned up")
	}
}

func TestShouldSkipName(t *testing.T) {
	cases := map[string]bool{
		"@eaDir":               true,
		".tmp":                 true,
		"temp_opt_something":   true,
		".photonix-write-test": true,
		"normal.jpg":           false,
	}
	for name, want := range cases {
		if got := shouldSkipName(name); got != want {
			t.Errorf("shouldSkipName(%q) = %v, want %v", name, got, want)
		}
	}
}
