package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const resumePointerKey = "last_processed_path"

// GetIndexProgress reads the single resume-pointer row.
func (r *Registry) GetIndexProgress(ctx context.Context) (*IndexProgress, error) {
	row, err := r.QueryOne(ctx, Index, "get_index_progress", `
		SELECT key, value, status, updated_at FROM index_progress WHERE key = ?
	`, resumePointerKey)
	if err != nil {
		return nil, err
	}
	var p IndexProgress
	var value sql.NullString
	var status string
	var updatedAt int64
	if err := row.Scan(&p.Key, &value, &status, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &IndexProgress{Key: resumePointerKey, Status: ProgressIdle}, nil
		}
		return nil, err
	}
	p.Value = value.String
	p.Status = IndexProgressStatus(status)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// SetIndexProgress upserts the resume pointer, used both to persist
// mid-walk progress and to flip the idle/building/paused status.
func (r *Registry) SetIndexProgress(ctx context.Context, value string, status IndexProgressStatus) error {
	_, err := r.Exec(ctx, Index, "set_index_progress", `
		INSERT INTO index_progress (key, value, status, updated_at)
		VALUES (?, ?, ?, strftime('%s','now'))
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			status = excluded.status,
			updated_at = strftime('%s','now')
	`, resumePointerKey, value, string(status))
	return err
}
