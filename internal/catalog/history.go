package catalog

import (
	"context"
	"time"
)

// RecordView upserts a view_history row: idempotent, and on conflict the
// newer viewed_at wins so out-of-order delivery can't regress the record.
func (r *Registry) RecordView(ctx context.Context, userID, itemPath string, viewedAt time.Time) error {
	_, err := r.Exec(ctx, History, "record_view", `
		INSERT INTO view_history (user_id, item_path, viewed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, item_path) DO UPDATE SET
			viewed_at = excluded.viewed_at
		WHERE excluded.viewed_at > view_history.viewed_at
	`, userID, itemPath, viewedAt.Unix())
	return err
}

// RecentViews returns the most recently viewed items for a user.
func (r *Registry) RecentViews(ctx context.Context, userID string, limit int) ([]ViewHistory, error) {
	rows, err := r.Query(ctx, History, "recent_views", `
		SELECT user_id, item_path, viewed_at FROM view_history
		WHERE user_id = ?
		ORDER BY viewed_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ViewHistory
	for rows.Next() {
		var v ViewHistory
		var viewedAt int64
		if err := rows.Scan(&v.UserID, &v.ItemPath, &viewedAt); err != nil {
			return nil, err
		}
		v.ViewedAt = time.Unix(viewedAt, 0)
		out = append(out, v)
	}
	return out, rows.Err()
}
