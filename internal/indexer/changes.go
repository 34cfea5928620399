package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"photonix-core/internal/catalog"
	"photonix-core/internal/eventbus"
	"photonix-core/internal/logging"
	"photonix-core/internal/mediatypes"
	"photonix-core/internal/metrics"
)

// ChangeType is the watcher's filesystem event vocabulary, matching
// spec.md's {add, unlink, addDir, unlinkDir} record shape.
type ChangeType string

const (
	ChangeAdd       ChangeType = "add"
	ChangeUnlink    ChangeType = "unlink"
	ChangeAddDir    ChangeType = "addDir"
	ChangeUnlinkDir ChangeType = "unlinkDir"
)

// ChangeRecord is one filesystem change awaiting catalog application.
// FilePath is relative to the photo root and forward-slash normalized.
type ChangeRecord struct {
	Type     ChangeType
	FilePath string
}

// applyChanges sequentially applies records. An error on one record is
// logged and skipped rather than aborting the batch, matching the engine's
// general "IO errors are logged and skipped" failure model.
func (idx *Indexer) applyChanges(ctx context.Context, records []ChangeRecord) {
	for _, rec := range records {
		metrics.IndexerChangeEventsTotal.WithLabelValues(string(rec.Type)).Inc()
		if err := idx.applyChange(ctx, rec); err != nil {
			logging.Warn("indexer: change %s %s failed: %v", rec.Type, rec.FilePath, err)
		}
	}
}

func (idx *Indexer) applyChange(ctx context.Context, rec ChangeRecord) error {
	switch rec.Type {
	case ChangeUnlink:
		if err := idx.catalog.DeleteItemCascade(ctx, rec.FilePath); err != nil {
			return err
		}
		metrics.IndexerItemsDeleted.Inc()
		idx.bus.Publish(eventbus.TopicItemRemoved, rec.FilePath, nil)
		return nil

	case ChangeUnlinkDir:
		deleted, err := idx.catalog.DeleteSubtreeCascade(ctx, rec.FilePath)
		if err != nil {
			return err
		}
		if deleted > 0 {
			metrics.IndexerItemsDeleted.Add(float64(deleted))
			idx.bus.Publish(eventbus.TopicItemRemoved, rec.FilePath, nil)
		}
		return nil

	case ChangeAddDir:
		abs := filepath.Join(idx.photosDir, filepath.FromSlash(rec.FilePath))
		info, err := os.Stat(abs)
		if err != nil {
			return err
		}
		item := &catalog.Item{
			Path:       rec.FilePath,
			ParentPath: parentOf(rec.FilePath),
			Type:       catalog.TypeAlbum,
			MTime:      info.ModTime(),
		}
		if err := idx.catalog.UpsertItem(ctx, item); err != nil {
			return err
		}
		metrics.IndexerItemsUpserted.WithLabelValues(string(catalog.TypeAlbum)).Inc()
		idx.bus.Publish(eventbus.TopicItemAdded, rec.FilePath, nil)
		return nil

	case ChangeAdd:
		abs := filepath.Join(idx.photosDir, filepath.FromSlash(rec.FilePath))
		info, err := os.Stat(abs)
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(rec.FilePath))
		ft := mediatypes.GetFileType(ext)
		if ft != mediatypes.FileTypeImage && ft != mediatypes.FileTypeVideo {
			return nil
		}
		itemType := catalog.TypePhoto
		if ft == mediatypes.FileTypeVideo {
			itemType = catalog.TypeVideo
		}
		item := &catalog.Item{
			Path:       rec.FilePath,
			ParentPath: parentOf(rec.FilePath),
			Type:       itemType,
			MTime:      info.ModTime(),
			SizeBytes:  info.Size(),
		}
		if err := idx.catalog.UpsertItem(ctx, item); err != nil {
			return err
		}
		metrics.IndexerItemsUpserted.WithLabelValues(string(itemType)).Inc()
		if err := idx.catalog.EnsureThumbStatusPending(ctx, rec.FilePath, info.ModTime()); err != nil {
			return err
		}
		if itemType == catalog.TypeVideo {
			if err := idx.catalog.EnsureHLSStatusPending(ctx, rec.FilePath); err != nil {
				return err
			}
		}
		idx.bus.Publish(eventbus.TopicItemAdded, rec.FilePath, nil)
		return nil
	}
	return nil
}

func parentOf(relPath string) string {
	i := strings.LastIndex(relPath, "/")
	if i < 0 {
		return ""
	}
	return relPath[:i]
}
