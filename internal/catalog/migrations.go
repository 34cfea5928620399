package catalog

import (
	"context"
	"fmt"

	"photonix-core/internal/logging"
)

// migration is one linear, numbered step applied to a single logical
// database, guarded by the schema_version row in that database's own file.
type migration struct {
	version int
	sql     string
}

var migrationsByDB = map[Name][]migration{
	Main: {
		{1, `
			CREATE TABLE IF NOT EXISTS items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				path TEXT NOT NULL UNIQUE,
				parent_path TEXT NOT NULL,
				type TEXT NOT NULL CHECK (type IN ('album','photo','video')),
				mtime INTEGER NOT NULL,
				width INTEGER,
				height INTEGER,
				size_bytes INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
				updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
			);
			CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_path);
			CREATE INDEX IF NOT EXISTS idx_items_type ON items(type);
			CREATE INDEX IF NOT EXISTS idx_items_parent_type ON items(parent_path, type);
			CREATE INDEX IF NOT EXISTS idx_items_updated_at ON items(updated_at);

			CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
				path,
				content='items',
				content_rowid='id',
				tokenize='trigram'
			);
			CREATE TRIGGER IF NOT EXISTS items_ai AFTER INSERT ON items BEGIN
				INSERT INTO items_fts(rowid, path) VALUES (new.id, new.path);
			END;
			CREATE TRIGGER IF NOT EXISTS items_ad AFTER DELETE ON items BEGIN
				INSERT INTO items_fts(items_fts, rowid, path) VALUES('delete', old.id, old.path);
			END;
			CREATE TRIGGER IF NOT EXISTS items_au AFTER UPDATE ON items BEGIN
				INSERT INTO items_fts(items_fts, rowid, path) VALUES('delete', old.id, old.path);
				INSERT INTO items_fts(rowid, path) VALUES (new.id, new.path);
			END;

			CREATE TABLE IF NOT EXISTS thumb_status (
				path TEXT PRIMARY KEY,
				status TEXT NOT NULL CHECK (status IN ('pending','processing','exists','failed','missing')),
				mtime INTEGER,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
			);
			CREATE INDEX IF NOT EXISTS idx_thumb_status_status ON thumb_status(status);

			CREATE TABLE IF NOT EXISTS hls_status (
				path TEXT PRIMARY KEY,
				status TEXT NOT NULL CHECK (status IN ('pending','processing','exists','failed','missing')),
				playlist_path TEXT,
				duration_s REAL,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
			);
			CREATE INDEX IF NOT EXISTS idx_hls_status_status ON hls_status(status);
		`},
	},
	Settings: {
		{1, `
			CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT,
				updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
			);
		`},
	},
	History: {
		{1, `
			CREATE TABLE IF NOT EXISTS view_history (
				user_id TEXT NOT NULL,
				item_path TEXT NOT NULL,
				viewed_at INTEGER NOT NULL,
				PRIMARY KEY (user_id, item_path)
			);
			CREATE INDEX IF NOT EXISTS idx_view_history_path ON view_history(item_path);

			CREATE TABLE IF NOT EXISTS download_tasks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				item_path TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'queued',
				created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
			);
		`},
	},
	Index: {
		{1, `
			CREATE TABLE IF NOT EXISTS index_progress (
				key TEXT PRIMARY KEY,
				value TEXT,
				status TEXT NOT NULL DEFAULT 'idle' CHECK (status IN ('idle','building','paused')),
				updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
			);
		`},
	},
}

func (r *Registry) runMigrations(ctx context.Context) error {
	for _, name := range allNames {
		h, err := r.conn(name)
		if err != nil {
			return err
		}
		if _, err := h.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
			return fmt.Errorf("catalog: create schema_version for %s: %w", name, err)
		}

		var current int
		row := h.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
		if err := row.Scan(&current); err != nil {
			return fmt.Errorf("catalog: read schema_version for %s: %w", name, err)
		}

		for _, m := range migrationsByDB[name] {
			if m.version <= current {
				continue
			}
			logging.Info("catalog: applying migration %s v%d", name, m.version)
			tx, err := h.db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("catalog: begin migration %s v%d: %w", name, m.version, err)
			}
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("catalog: apply migration %s v%d: %w", name, m.version, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (?)`, m.version); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("catalog: record migration %s v%d: %w", name, m.version, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("catalog: commit migration %s v%d: %w", name, m.version, err)
			}
		}
	}
	return nil
}
