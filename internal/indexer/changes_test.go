package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"photonix-core/internal/catalog"
)

func TestApplyChangeAddUpsertsItemAndPendingStatus(t *testing.T) {
	photosDir := t.TempDir()
	writeFile(t, filepath.Join(photosDir, "album", "new.jpg"), "x")

	idx, reg := newTestIndexer(t, photosDir)
	ctx := context.Background()

	if err := idx.applyChange(ctx, ChangeRecord{Type: ChangeAdd, FilePath: "album/new.jpg"}); err != nil {
		t.Fatalf("applyChange add: %v", err)
	}

	item, err := reg.GetItemByPath(ctx, "album/new.jpg")
	if err != nil {
		t.Fatalf("GetItemByPath: %v", err)
	}
	if item.Type != catalog.TypePhoto {
		t.Errorf("expected photo, got %s", item.Type)
	}

	status, err := reg.GetThumbStatus(ctx, "album/new.jpg")
	if err != nil {
		t.Fatalf("GetThumbStatus: %v", err)
	}
	if status.Status != catalog.StatusPending {
		t.Errorf("expected pending, got %s", status.Status)
	}
}

func TestApplyChangeAddSkipsNonMediaFiles(t *testing.T) {
	photosDir := t.TempDir()
	writeFile(t, filepath.Join(photosDir, "album", "notes.txt"), "not media")

	idx, reg := newTestIndexer(t, photosDir)
	ctx := context.Background()

	if err := idx.applyChange(ctx, ChangeRecord{Type: ChangeAdd, FilePath: "album/notes.txt"}); err != nil {
		t.Fatalf("applyChange add: %v", err)
	}

	if _, err := reg.GetItemByPath(ctx, "album/notes.txt"); err == nil {
		t.Error("expected non-media file to be skipped")
	}
}

func TestApplyChangeUnlinkDeletesItemAndArtifactRows(t *testing.T) {
	photosDir := t.TempDir()
	idx, reg := newTestIndexer(t, photosDir)
	ctx := context.Background()

	item := &catalog.Item{Path: "album/gone.jpg", ParentPath: "album", Type: catalog.TypePhoto}
	if err := reg.UpsertItem(ctx, item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	if err := reg.EnsureThumbStatusPending(ctx, item.Path, item.MTime); err != nil {
		t.Fatalf("EnsureThumbStatusPending: %v", err)
	}

	if err := idx.applyChange(ctx, ChangeRecord{Type: ChangeUnlink, FilePath: "album/gone.jpg"}); err != nil {
		t.Fatalf("applyChange unlink: %v", err)
	}

	if _, err := reg.GetItemByPath(ctx, "album/gone.jpg"); err == nil {
		t.Error("expected item to be deleted")
	}
	if _, err := reg.GetThumbStatus(ctx, "album/gone.jpg"); err == nil {
		t.Error("expected thumb_status row to be cascade-deleted")
	}
}

func TestApplyChangeUnlinkDirDeletesSubtree(t *testing.T) {
	photosDir := t.TempDir()
	idx, reg := newTestIndexer(t, photosDir)
	ctx := context.Background()

	if err := reg.UpsertItem(ctx, &catalog.Item{Path: "album", ParentPath: "", Type: catalog.TypeAlbum}); err != nil {
		t.Fatalf("UpsertItem album: %v", err)
	}
	if err := reg.UpsertItem(ctx, &catalog.Item{Path: "album/a.jpg", ParentPath: "album", Type: catalog.TypePhoto}); err != nil {
		t.Fatalf("UpsertItem album/a.jpg: %v", err)
	}
	if err := reg.UpsertItem(ctx, &catalog.Item{Path: "album/sub/b.jpg", ParentPath: "album/sub", Type: catalog.TypePhoto}); err != nil {
		t.Fatalf("UpsertItem album/sub/b.jpg: %v", err)
	}

	if err := idx.applyChange(ctx, ChangeRecord{Type: ChangeUnlinkDir, FilePath: "album"}); err != nil {
		t.Fatalf("applyChange unlinkDir: %v", err)
	}

	for _, p := range []string{"album", "album/a.jpg", "album/sub/b.jpg"} {
		if _, err := reg.GetItemByPath(ctx, p); err == nil {
			t.Errorf("expected %s to be deleted", p)
		}
	}
}
