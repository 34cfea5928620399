package catalog

import (
	"context"
	"database/sql"
)

// GetSetting reads a single key from the settings table. ok is false if the
// key has never been set.
func (r *Registry) GetSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	row, err := r.QueryOne(ctx, Settings, "get_setting", `SELECT value FROM settings WHERE key = ?`, key)
	if err != nil {
		return "", false, err
	}
	var v sql.NullString
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return v.String, true, nil
}

// SetSetting upserts a single key/value pair in the settings table.
func (r *Registry) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.Exec(ctx, Settings, "set_setting",
		`INSERT INTO settings(key, value, updated_at) VALUES (?, ?, strftime('%s','now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	return err
}
