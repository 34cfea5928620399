package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"photonix-core/internal/catalog"
	"photonix-core/internal/filesystem"
	"photonix-core/internal/logging"
	"photonix-core/internal/mediatypes"
)

// ReconcileDiff is the {addedAlbums, removedAlbums, addedMedia, removedMedia}
// shape from spec.md's reconciliation contract.
type ReconcileDiff struct {
	AddedAlbums   []string
	RemovedAlbums []string
	AddedMedia    []string
	RemovedMedia  []string
}

// Reconcile collects filesystem state and catalog state, diffs them, and
// feeds the diff through change processing as a synthesized batch of
// change records.
func (idx *Indexer) Reconcile(ctx context.Context) (ReconcileDiff, error) {
	fsAlbums, fsMedia, err := idx.scanFilesystemPaths(ctx)
	if err != nil {
		return ReconcileDiff{}, err
	}
	dbAlbums, dbMedia, err := idx.scanCatalogPaths(ctx)
	if err != nil {
		return ReconcileDiff{}, err
	}

	diff := ReconcileDiff{
		AddedAlbums:   setDiff(fsAlbums, dbAlbums),
		RemovedAlbums: setDiff(dbAlbums, fsAlbums),
		AddedMedia:    setDiff(fsMedia, dbMedia),
		RemovedMedia:  setDiff(dbMedia, fsMedia),
	}

	logging.Info("indexer: reconciliation found %d added albums, %d removed albums, %d added media, %d removed media",
		len(diff.AddedAlbums), len(diff.RemovedAlbums), len(diff.AddedMedia), len(diff.RemovedMedia))

	records := make([]ChangeRecord, 0, len(diff.AddedAlbums)+len(diff.RemovedAlbums)+len(diff.AddedMedia)+len(diff.RemovedMedia))
	for _, p := range diff.AddedAlbums {
		records = append(records, ChangeRecord{Type: ChangeAddDir, FilePath: p})
	}
	for _, p := range diff.RemovedAlbums {
		records = append(records, ChangeRecord{Type: ChangeUnlinkDir, FilePath: p})
	}
	for _, p := range diff.AddedMedia {
		records = append(records, ChangeRecord{Type: ChangeAdd, FilePath: p})
	}
	for _, p := range diff.RemovedMedia {
		records = append(records, ChangeRecord{Type: ChangeUnlink, FilePath: p})
	}

	idx.applyChanges(ctx, records)
	return diff, nil
}

func setDiff(a, b map[string]struct{}) []string {
	var out []string
	for p := range a {
		if _, ok := b[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

func (idx *Indexer) scanFilesystemPaths(ctx context.Context) (albums, media map[string]struct{}, err error) {
	albums = make(map[string]struct{})
	media = make(map[string]struct{})
	stack := []string{""}

	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		abs := filepath.Join(idx.photosDir, filepath.FromSlash(rel))

		entries, err := filesystem.ReadDirWithRetry(abs, filesystem.DefaultRetryConfig())
		if err != nil {
			logging.Warn("indexer: reconcile failed to list %s: %v", abs, err)
			continue
		}
		for _, e := range entries {
			if shouldSkipName(e.Name()) || e.Type()&os.ModeSymlink != 0 {
				continue
			}
			childRel := joinRel(rel, e.Name())
			if e.IsDir() {
				albums[childRel] = struct{}{}
				stack = append(stack, childRel)
				continue
			}
			ext := strings.ToLower(filepath.Ext(e.Name()))
			ft := mediatypes.GetFileType(ext)
			if ft == mediatypes.FileTypeImage || ft == mediatypes.FileTypeVideo {
				media[childRel] = struct{}{}
			}
		}
	}
	return albums, media, nil
}

func (idx *Indexer) scanCatalogPaths(ctx context.Context) (albums, media map[string]struct{}, err error) {
	albums = make(map[string]struct{})
	media = make(map[string]struct{})
	items, err := idx.catalog.ListAllPaths(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, it := range items {
		if it.Type == catalog.TypeAlbum {
			albums[it.Path] = struct{}{}
		} else {
			media[it.Path] = struct{}{}
		}
	}
	return albums, media, nil
}
