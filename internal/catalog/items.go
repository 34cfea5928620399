package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"photonix-core/internal/errs"
)

// UpsertItem inserts or updates an item row within the caller's transaction
// (or, if none is open, directly against the main database). type is
// immutable per path (I3): callers that need to change an item's type must
// delete and re-insert.
func (r *Registry) UpsertItem(ctx context.Context, item *Item) error {
	_, err := r.Exec(ctx, Main, "upsert_item", `
		INSERT INTO items (path, parent_path, type, mtime, width, height, size_bytes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, strftime('%s','now'))
		ON CONFLICT(path) DO UPDATE SET
			parent_path = excluded.parent_path,
			mtime       = excluded.mtime,
			width       = excluded.width,
			height      = excluded.height,
			size_bytes  = excluded.size_bytes,
			updated_at  = strftime('%s','now')
		WHERE items.type = excluded.type
	`, item.Path, item.ParentPath, string(item.Type), item.MTime.Unix(), item.Width, item.Height, item.SizeBytes)
	return err
}

// DeleteItem removes an item (and, via the FTS triggers, its search row).
func (r *Registry) DeleteItem(ctx context.Context, path string) error {
	_, err := r.Exec(ctx, Main, "delete_item", `DELETE FROM items WHERE path = ?`, path)
	return err
}

// DeleteItemsNotSeenSince removes items whose updated_at predates cutoff,
// used by the indexer's post-walk reconciliation pass.
func (r *Registry) DeleteItemsNotSeenSince(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.Exec(ctx, Main, "delete_missing_items", `DELETE FROM items WHERE updated_at < ?`, cutoff.Unix())
}

// DeleteItemCascade removes an item along with its thumb_status and
// hls_status rows, used by the indexer's unlink change processing so a
// removed file doesn't leave orphaned artifact-status rows behind.
func (r *Registry) DeleteItemCascade(ctx context.Context, path string) error {
	return r.WithTransaction(ctx, Main, func(ctx context.Context) error {
		if _, err := r.Exec(ctx, Main, "delete_item_cascade_item", `DELETE FROM items WHERE path = ?`, path); err != nil {
			return err
		}
		if _, err := r.Exec(ctx, Main, "delete_item_cascade_thumb", `DELETE FROM thumb_status WHERE path = ?`, path); err != nil {
			return err
		}
		if _, err := r.Exec(ctx, Main, "delete_item_cascade_hls", `DELETE FROM hls_status WHERE path = ?`, path); err != nil {
			return err
		}
		return nil
	}, "IMMEDIATE")
}

// DeleteSubtreeCascade removes pathPrefix itself plus every item whose path
// is nested under it (path LIKE "pathPrefix/%"), along with their
// thumb_status and hls_status rows — used by the indexer's unlinkDir change
// processing, since a removed directory takes its whole subtree with it.
// Returns the number of item rows deleted.
func (r *Registry) DeleteSubtreeCascade(ctx context.Context, pathPrefix string) (int64, error) {
	var deleted int64
	err := r.WithTransaction(ctx, Main, func(ctx context.Context) error {
		n, err := r.Exec(ctx, Main, "delete_subtree_items",
			`DELETE FROM items WHERE path = ? OR path LIKE ? ESCAPE '\'`,
			pathPrefix, escapeLike(pathPrefix)+"/%")
		if err != nil {
			return err
		}
		deleted = n
		if _, err := r.Exec(ctx, Main, "delete_subtree_thumb",
			`DELETE FROM thumb_status WHERE path = ? OR path LIKE ? ESCAPE '\'`,
			pathPrefix, escapeLike(pathPrefix)+"/%"); err != nil {
			return err
		}
		if _, err := r.Exec(ctx, Main, "delete_subtree_hls",
			`DELETE FROM hls_status WHERE path = ? OR path LIKE ? ESCAPE '\'`,
			pathPrefix, escapeLike(pathPrefix)+"/%"); err != nil {
			return err
		}
		return nil
	}, "IMMEDIATE")
	return deleted, err
}

// escapeLike escapes the LIKE wildcard characters in a literal path segment
// so a directory name containing '%' or '_' can't widen the subtree match.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

// ListAllPaths returns every item's path and type, used by the indexer's
// reconciliation pass to diff filesystem state against catalog state.
func (r *Registry) ListAllPaths(ctx context.Context) ([]*Item, error) {
	rows, err := r.Query(ctx, Main, "list_all_paths", `SELECT path, type FROM items`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		var it Item
		var typ string
		if err := rows.Scan(&it.Path, &typ); err != nil {
			return nil, err
		}
		it.Type = ItemType(typ)
		items = append(items, &it)
	}
	return items, rows.Err()
}

// CountItems returns the total number of item rows, used by the
// orchestrator to decide whether a startup index rebuild is needed.
func (r *Registry) CountItems(ctx context.Context) (int64, error) {
	row, err := r.QueryOne(ctx, Main, "count_items", `SELECT COUNT(*) FROM items`)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetItemByPath retrieves a single item.
func (r *Registry) GetItemByPath(ctx context.Context, path string) (*Item, error) {
	row, err := r.QueryOne(ctx, Main, "get_item_by_path", `
		SELECT id, path, parent_path, type, mtime, width, height, size_bytes, updated_at
		FROM items WHERE path = ?
	`, path)
	if err != nil {
		return nil, err
	}
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "catalog.item_not_found", "item not found").WithDetails(map[string]any{"path": path})
	}
	return item, err
}

// SortField selects which column ListChildren orders by; the zero value
// sorts by path.
type SortField string

const (
	SortByName SortField = "name"
	SortByDate SortField = "date"
	SortBySize SortField = "size"
)

// SortOrder selects ListChildren's sort direction; the zero value is
// ascending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

var childSortColumns = map[SortField]string{
	SortByName: "path",
	SortByDate: "mtime",
	SortBySize: "size_bytes",
}

// ListChildren returns the direct children of parentPath, always with
// albums ahead of media, and secondarily ordered by sort/order (defaulting
// to path ascending).
func (r *Registry) ListChildren(ctx context.Context, parentPath string, sort SortField, order SortOrder, limit, offset int) ([]*Item, error) {
	col, ok := childSortColumns[sort]
	if !ok {
		col = "path"
	}
	dir := "ASC"
	if order == SortDesc {
		dir = "DESC"
	}
	query := `
		SELECT id, path, parent_path, type, mtime, width, height, size_bytes, updated_at
		FROM items WHERE parent_path = ?
		ORDER BY type, ` + col + ` ` + dir + `
		LIMIT ? OFFSET ?
	`
	rows, err := r.Query(ctx, Main, "list_children", query, parentPath, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// CountChildren returns the number of direct children of parentPath, used
// to compute totalPages/totalResults for the browse endpoint.
func (r *Registry) CountChildren(ctx context.Context, parentPath string) (int64, error) {
	row, err := r.QueryOne(ctx, Main, "count_children", `SELECT COUNT(*) FROM items WHERE parent_path = ?`, parentPath)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Search runs a full-text search against the trigram-tokenized FTS view and
// joins back to items for the full row.
func (r *Registry) Search(ctx context.Context, query string, limit, offset int) ([]*Item, error) {
	rows, err := r.Query(ctx, Main, "search", `
		SELECT i.id, i.path, i.parent_path, i.type, i.mtime, i.width, i.height, i.size_bytes, i.updated_at
		FROM items_fts f
		JOIN items i ON i.id = f.rowid
		WHERE items_fts MATCH ?
		ORDER BY rank
		LIMIT ? OFFSET ?
	`, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// CountSearch returns the total number of items_fts rows matching query,
// used to compute the search endpoint's totalResults.
func (r *Registry) CountSearch(ctx context.Context, query string) (int64, error) {
	row, err := r.QueryOne(ctx, Main, "count_search", `
		SELECT COUNT(*) FROM items_fts WHERE items_fts MATCH ?
	`, query)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanItem(row *sql.Row) (*Item, error) {
	var item Item
	var typ string
	var mtime int64
	var updatedAt int64
	if err := row.Scan(&item.ID, &item.Path, &item.ParentPath, &typ, &mtime, &item.Width, &item.Height, &item.SizeBytes, &updatedAt); err != nil {
		return nil, err
	}
	item.Type = ItemType(typ)
	item.MTime = time.Unix(mtime, 0)
	item.UpdatedAt = time.Unix(updatedAt, 0)
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		var item Item
		var typ string
		var mtime int64
		var updatedAt int64
		if err := rows.Scan(&item.ID, &item.Path, &item.ParentPath, &typ, &mtime, &item.Width, &item.Height, &item.SizeBytes, &updatedAt); err != nil {
			return nil, errs.Wrap(errs.External, "catalog.scan_item", err)
		}
		item.Type = ItemType(typ)
		item.MTime = time.Unix(mtime, 0)
		item.UpdatedAt = time.Unix(updatedAt, 0)
		items = append(items, &item)
	}
	return items, rows.Err()
}
