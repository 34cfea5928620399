package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// EnsureThumbStatusPending creates a pending thumb_status row for path if
// one doesn't already exist. Called by the indexer immediately after an
// item insert.
func (r *Registry) EnsureThumbStatusPending(ctx context.Context, path string, mtime time.Time) error {
	_, err := r.Exec(ctx, Main, "ensure_thumb_status", `
		INSERT INTO thumb_status (path, status, mtime, updated_at)
		VALUES (?, 'pending', ?, strftime('%s','now'))
		ON CONFLICT(path) DO NOTHING
	`, path, mtime.Unix())
	return err
}

// TransitionThumbStatus moves path to newStatus, recording lastErr (if any)
// and bumping attempts on a transition into 'failed'.
func (r *Registry) TransitionThumbStatus(ctx context.Context, path string, newStatus ArtifactStatus, lastErr string) error {
	attemptsDelta := 0
	if newStatus == StatusFailed {
		attemptsDelta = 1
	}
	_, err := r.Exec(ctx, Main, "transition_thumb_status", `
		UPDATE thumb_status
		SET status = ?, last_error = ?, attempts = attempts + ?, updated_at = strftime('%s','now')
		WHERE path = ?
	`, string(newStatus), lastErr, attemptsDelta, path)
	return err
}

// GetThumbStatus retrieves the thumb_status row for path.
func (r *Registry) GetThumbStatus(ctx context.Context, path string) (*ThumbStatus, error) {
	row, err := r.QueryOne(ctx, Main, "get_thumb_status", `
		SELECT path, status, mtime, attempts, last_error, updated_at FROM thumb_status WHERE path = ?
	`, path)
	if err != nil {
		return nil, err
	}
	return scanThumbStatus(row)
}

// SamplePendingOrMissingThumbs returns a random sample of up to n paths
// whose thumb_status is pending or missing, or whose status is failed with
// fewer than maxAttempts recorded attempts — a failed row past that cap is
// a permanent validation error, not worth retrying on every backfill pass.
func (r *Registry) SamplePendingOrMissingThumbs(ctx context.Context, n, maxAttempts int) ([]string, error) {
	rows, err := r.Query(ctx, Main, "sample_pending_thumbs", `
		SELECT path FROM thumb_status
		WHERE status IN ('pending','missing')
		   OR (status = 'failed' AND attempts < ?)
		ORDER BY RANDOM()
		LIMIT ?
	`, maxAttempts, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// SampleThumbsByStatus returns a random sample of up to n paths currently at
// status, used by the self-heal sweep to probe whether rows the catalog
// believes are 'exists' actually have an artifact on disk.
func (r *Registry) SampleThumbsByStatus(ctx context.Context, status ArtifactStatus, n int) ([]string, error) {
	rows, err := r.Query(ctx, Main, "sample_thumbs_by_status", `
		SELECT path FROM thumb_status WHERE status = ? ORDER BY RANDOM() LIMIT ?
	`, string(status), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// CountThumbStatus returns the number of thumb_status rows at status.
func (r *Registry) CountThumbStatus(ctx context.Context, status ArtifactStatus) (int64, error) {
	row, err := r.QueryOne(ctx, Main, "count_thumb_status", `
		SELECT COUNT(*) FROM thumb_status WHERE status = ?
	`, string(status))
	if err != nil {
		return 0, err
	}
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListThumbsByStatus returns every path currently at status, used by the
// self-heal sweep to reset all 'exists' rows at once when the artifact root
// has been wiped out from under the database.
func (r *Registry) ListThumbsByStatus(ctx context.Context, status ArtifactStatus) ([]string, error) {
	rows, err := r.Query(ctx, Main, "list_thumbs_by_status", `
		SELECT path FROM thumb_status WHERE status = ?
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ResetThumbStatusToPending resets stuck/inconsistent rows (e.g. 'exists'
// rows whose artifact file is missing on disk) back to 'pending' so the
// backfill loop picks them up again.
func (r *Registry) ResetThumbStatusToPending(ctx context.Context, paths []string) (int64, error) {
	rows := make([][]any, len(paths))
	for i, p := range paths {
		rows[i] = []any{p}
	}
	return r.Batch(ctx, Main, "reset_thumb_status", `
		UPDATE thumb_status SET status = 'pending', updated_at = strftime('%s','now') WHERE path = ?
	`, rows, 0)
}

func scanThumbStatus(row *sql.Row) (*ThumbStatus, error) {
	var s ThumbStatus
	var status string
	var mtime sql.NullInt64
	var lastErr sql.NullString
	var updatedAt int64
	if err := row.Scan(&s.Path, &status, &mtime, &s.Attempts, &lastErr, &updatedAt); err != nil {
		return nil, err
	}
	s.Status = ArtifactStatus(status)
	if mtime.Valid {
		t := time.Unix(mtime.Int64, 0)
		s.MTime = &t
	}
	s.LastError = lastErr.String
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}

// ListHLSStatusPaths returns every path with an hls_status row, regardless of
// status — used by the orchestrator's HLS cleanup task to tell a legitimate
// (if not-yet-ready) output directory from an orphan left by a deleted video.
func (r *Registry) ListHLSStatusPaths(ctx context.Context) ([]string, error) {
	rows, err := r.Query(ctx, Main, "list_hls_status_paths", `SELECT path FROM hls_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// SamplePendingHLS returns a random sample of up to n video paths whose
// hls_status is pending or missing, or failed with fewer than maxAttempts
// recorded attempts, mirroring SamplePendingOrMissingThumbs for the
// orchestrator's HLS backfill task.
func (r *Registry) SamplePendingHLS(ctx context.Context, n, maxAttempts int) ([]string, error) {
	rows, err := r.Query(ctx, Main, "sample_pending_hls", `
		SELECT path FROM hls_status
		WHERE status IN ('pending','missing')
		   OR (status = 'failed' AND attempts < ?)
		ORDER BY RANDOM()
		LIMIT ?
	`, maxAttempts, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// EnsureHLSStatusPending creates a pending hls_status row for a video path.
func (r *Registry) EnsureHLSStatusPending(ctx context.Context, path string) error {
	_, err := r.Exec(ctx, Main, "ensure_hls_status", `
		INSERT INTO hls_status (path, status, updated_at)
		VALUES (?, 'pending', strftime('%s','now'))
		ON CONFLICT(path) DO NOTHING
	`, path)
	return err
}

// TransitionHLSStatus moves path's HLS status, recording playlist path and
// duration on a transition into 'exists'.
func (r *Registry) TransitionHLSStatus(ctx context.Context, path string, newStatus ArtifactStatus, playlistPath string, durationS float64, lastErr string) error {
	attemptsDelta := 0
	if newStatus == StatusFailed {
		attemptsDelta = 1
	}
	_, err := r.Exec(ctx, Main, "transition_hls_status", `
		UPDATE hls_status
		SET status = ?, playlist_path = ?, duration_s = ?, last_error = ?,
		    attempts = attempts + ?, updated_at = strftime('%s','now')
		WHERE path = ?
	`, string(newStatus), playlistPath, durationS, lastErr, attemptsDelta, path)
	return err
}

// GetHLSStatus retrieves the hls_status row for path.
func (r *Registry) GetHLSStatus(ctx context.Context, path string) (*HLSStatus, error) {
	row, err := r.QueryOne(ctx, Main, "get_hls_status", `
		SELECT path, status, COALESCE(playlist_path,''), COALESCE(duration_s,0), attempts, COALESCE(last_error,''), updated_at
		FROM hls_status WHERE path = ?
	`, path)
	if err != nil {
		return nil, err
	}
	var s HLSStatus
	var status string
	var updatedAt int64
	if err := row.Scan(&s.Path, &status, &s.PlaylistPath, &s.DurationS, &s.Attempts, &s.LastError, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, err
	}
	s.Status = ArtifactStatus(status)
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}
