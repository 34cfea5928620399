package catalog

import (
	"context"
	"fmt"
	"time"

	"photonix-core/internal/errs"
	"photonix-core/internal/metrics"
)

// GetStats implements metrics.StatsProvider.
func (r *Registry) GetStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var s metrics.Stats
	counts := map[ItemType]*int{
		TypeAlbum: &s.TotalAlbums,
		TypePhoto: &s.TotalPhotos,
		TypeVideo: &s.TotalVideos,
	}
	for typ, dst := range counts {
		row, err := r.QueryOne(ctx, Main, "count_items_by_type", `SELECT COUNT(*) FROM items WHERE type = ?`, string(typ))
		if err != nil {
			continue
		}
		var n int
		if row.Scan(&n) == nil {
			*dst = n
		}
	}

	if row, err := r.QueryOne(ctx, Main, "count_thumbs", `SELECT COUNT(*) FROM thumb_status WHERE status = 'exists'`); err == nil {
		var n int
		if row.Scan(&n) == nil {
			s.TotalThumbs = n
		}
	}

	if row, err := r.QueryOne(ctx, Main, "count_fts_rows", `SELECT COUNT(*) FROM items_fts`); err == nil {
		var n int
		if row.Scan(&n) == nil {
			s.FTSRows = n
		}
	}

	return s
}

// RebuildFTS forces a full rebuild of the items_fts virtual table, restoring
// invariant I4 (FTS row count equals item row count) after bulk operations
// that bypass the triggers (e.g. a legacy-layout import).
func (r *Registry) RebuildFTS(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := r.Exec(ctx, Main, "rebuild_fts", `INSERT INTO items_fts(items_fts) VALUES('rebuild')`)
	return err
}

// CheckIntegrity re-runs PRAGMA integrity_check against every logical
// database, the same check Open performs at startup. C10 schedules this a
// short delay after boot, giving an early signal of on-disk corruption that
// slipped past the open-time check (e.g. a crash mid-write just before
// restart).
func (r *Registry) CheckIntegrity(ctx context.Context) error {
	for _, name := range allNames {
		h, err := r.conn(name)
		if err != nil {
			return err
		}
		var result string
		if err := h.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
			return errs.Wrap(errs.External, "catalog.integrity_check", err).WithDetails(map[string]any{"db": string(name)})
		}
		if result != "ok" {
			return errs.New(errs.Corruption, "catalog.integrity_check_failed",
				fmt.Sprintf("database %s failed integrity check: %s", name, result)).WithDetails(map[string]any{"db": string(name)})
		}
	}
	return nil
}

// Analyze runs ANALYZE against every logical database, refreshing the query
// planner's statistics. Used by the orchestrator's periodic DB maintenance task.
func (r *Registry) Analyze(ctx context.Context) error {
	for _, name := range allNames {
		h, err := r.conn(name)
		if err != nil {
			return err
		}
		if _, err := h.db.ExecContext(ctx, "ANALYZE"); err != nil {
			return errs.Wrap(errs.External, "catalog.analyze", err).WithDetails(map[string]any{"db": string(name)})
		}
		if _, err := h.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			return errs.Wrap(errs.External, "catalog.optimize", err).WithDetails(map[string]any{"db": string(name)})
		}
	}
	return nil
}
