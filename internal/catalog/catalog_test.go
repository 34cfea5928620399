package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := Open(context.Background(), Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestOpenCreatesAllFourDatabases(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(context.Background(), Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	for _, name := range allNames {
		path := r.PathFor(name)
		if path == "" {
			t.Errorf("expected a path for %s", name)
		}
		if filepath.Dir(path) != dir {
			t.Errorf("expected %s under %s, got %s", name, dir, path)
		}
	}
}

func TestUpsertAndGetItem(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	item := &Item{
		Path:       "2024/summer/beach.jpg",
		ParentPath: "2024/summer",
		Type:       TypePhoto,
		MTime:      time.Unix(1700000000, 0),
		SizeBytes:  12345,
	}
	if err := r.UpsertItem(ctx, item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}

	got, err := r.GetItemByPath(ctx, item.Path)
	if err != nil {
		t.Fatalf("GetItemByPath: %v", err)
	}
	if got.Path != item.Path || got.Type != TypePhoto || got.SizeBytes != 12345 {
		t.Errorf("unexpected item: %+v", got)
	}
}

func TestGetItemByPathNotFound(t *testing.T) {
	r := openTestRegistry(t)
	_, err := r.GetItemByPath(context.Background(), "does/not/exist.jpg")
	if err == nil {
		t.Fatal("expected an error for a missing item")
	}
}

func TestUpsertItemTypeIsImmutable(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	item := &Item{Path: "a/b.jpg", ParentPath: "a", Type: TypePhoto, MTime: time.Now()}
	if err := r.UpsertItem(ctx, item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}

	changed := &Item{Path: "a/b.jpg", ParentPath: "a", Type: TypeVideo, MTime: time.Now()}
	if err := r.UpsertItem(ctx, changed); err != nil {
		t.Fatalf("UpsertItem (type change attempt): %v", err)
	}

	got, err := r.GetItemByPath(ctx, "a/b.jpg")
	if err != nil {
		t.Fatalf("GetItemByPath: %v", err)
	}
	if got.Type != TypePhoto {
		t.Errorf("expected type to remain photo, got %s", got.Type)
	}
}

func TestWithTransactionNestsAsSavepoint(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	err := r.WithTransaction(ctx, Main, func(ctx context.Context) error {
		if err := r.UpsertItem(ctx, &Item{Path: "x/1.jpg", ParentPath: "x", Type: TypePhoto, MTime: time.Now()}); err != nil {
			return err
		}
		return r.WithTransaction(ctx, Main, func(ctx context.Context) error {
			return r.UpsertItem(ctx, &Item{Path: "x/2.jpg", ParentPath: "x", Type: TypePhoto, MTime: time.Now()})
		}, "")
	}, "IMMEDIATE")
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}

	for _, p := range []string{"x/1.jpg", "x/2.jpg"} {
		if _, err := r.GetItemByPath(ctx, p); err != nil {
			t.Errorf("expected %s to be committed: %v", p, err)
		}
	}
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	err := r.WithTransaction(ctx, Main, func(ctx context.Context) error {
		if err := r.UpsertItem(ctx, &Item{Path: "y/1.jpg", ParentPath: "y", Type: TypePhoto, MTime: time.Now()}); err != nil {
			return err
		}
		return errTestSentinel
	}, "IMMEDIATE")
	if err == nil {
		t.Fatal("expected an error from WithTransaction")
	}

	if _, err := r.GetItemByPath(ctx, "y/1.jpg"); err == nil {
		t.Error("expected item to be rolled back")
	}
}

func TestThumbStatusLifecycle(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	if err := r.EnsureThumbStatusPending(ctx, "a/b.jpg", time.Now()); err != nil {
		t.Fatalf("EnsureThumbStatusPending: %v", err)
	}

	status, err := r.GetThumbStatus(ctx, "a/b.jpg")
	if err != nil {
		t.Fatalf("GetThumbStatus: %v", err)
	}
	if status.Status != StatusPending {
		t.Errorf("expected pending, got %s", status.Status)
	}

	if err := r.TransitionThumbStatus(ctx, "a/b.jpg", StatusExists, ""); err != nil {
		t.Fatalf("TransitionThumbStatus: %v", err)
	}
	status, err = r.GetThumbStatus(ctx, "a/b.jpg")
	if err != nil {
		t.Fatalf("GetThumbStatus: %v", err)
	}
	if status.Status != StatusExists {
		t.Errorf("expected exists, got %s", status.Status)
	}
}

func TestIndexProgressRoundtrip(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	p, err := r.GetIndexProgress(ctx)
	if err != nil {
		t.Fatalf("GetIndexProgress: %v", err)
	}
	if p.Status != ProgressIdle {
		t.Errorf("expected idle default, got %s", p.Status)
	}

	if err := r.SetIndexProgress(ctx, "2024/summer/beach.jpg", ProgressBuilding); err != nil {
		t.Fatalf("SetIndexProgress: %v", err)
	}

	p, err = r.GetIndexProgress(ctx)
	if err != nil {
		t.Fatalf("GetIndexProgress: %v", err)
	}
	if p.Value != "2024/summer/beach.jpg" || p.Status != ProgressBuilding {
		t.Errorf("unexpected progress: %+v", p)
	}
}

func TestRecordViewNewerTimestampWins(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	early := time.Unix(1000, 0)
	late := time.Unix(2000, 0)

	if err := r.RecordView(ctx, "u1", "a/b.jpg", late); err != nil {
		t.Fatalf("RecordView: %v", err)
	}
	if err := r.RecordView(ctx, "u1", "a/b.jpg", early); err != nil {
		t.Fatalf("RecordView (older): %v", err)
	}

	views, err := r.RecentViews(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("RecentViews: %v", err)
	}
	if len(views) != 1 || !views[0].ViewedAt.Equal(late) {
		t.Errorf("expected the later timestamp to win, got %+v", views)
	}
}

type sentinelError struct{ msg string }

func (e *sentinelError) Error() string { return e.msg }

var errTestSentinel = &sentinelError{"sentinel"}
