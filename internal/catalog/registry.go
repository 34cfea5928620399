package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"photonix-core/internal/errs"
	"photonix-core/internal/logging"
	"photonix-core/internal/metrics"
)

// Name identifies one of the four logical databases.
type Name string

const (
	Main     Name = "main"
	Settings Name = "settings"
	History  Name = "history"
	Index    Name = "index"
)

var allNames = []Name{Main, Settings, History, Index}

const defaultTimeout = 5 * time.Second

const driverName = "sqlite3_mmap_disabled"
const standardDriverName = "sqlite3"

var registerOnce sync.Once

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				_, err := conn.Exec("PRAGMA mmap_size = 0", nil)
				return err
			},
		})
	})
}

func init() {
	registerDriver()
}

// Options configures Registry construction.
type Options struct {
	// Dir is the directory holding the four SQLite files (<name>.sqlite).
	Dir string
	// MmapDisabled routes connections through the custom driver that pins
	// mmap_size to 0, avoiding SIGBUS on unreliable network storage.
	MmapDisabled bool
}

type handle struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Registry owns the four logical database connections for the process
// lifetime. All catalog access goes through it.
type Registry struct {
	opts    Options
	handles map[Name]*handle
}

// Open opens (creating if necessary) all four logical databases, runs
// integrity checks and migrations, and returns a ready Registry.
func Open(ctx context.Context, opts Options) (*Registry, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.External, "catalog.mkdir", err)
	}

	r := &Registry{opts: opts, handles: make(map[Name]*handle, len(allNames))}

	for _, name := range allNames {
		h, err := r.openOne(ctx, name)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.handles[name] = h
	}

	if err := r.runMigrations(ctx); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

func (r *Registry) openOne(ctx context.Context, name Name) (*handle, error) {
	path := filepath.Join(r.opts.Dir, string(name)+".sqlite")

	driver := standardDriverName
	if r.opts.MmapDisabled {
		driver = driverName
	}

	connStr := fmt.Sprintf(
		"%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_foreign_keys=on",
		path,
	)

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, errs.Wrap(errs.External, "catalog.open", err).WithDetails(map[string]any{"db": string(name)})
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.Unavailable, "catalog.ping", err).WithDetails(map[string]any{"db": string(name)})
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	var integrityResult string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.Corruption, "catalog.integrity_check", err).WithDetails(map[string]any{"db": string(name)})
	}
	if integrityResult != "ok" {
		_ = db.Close()
		return nil, errs.New(errs.Corruption, "catalog.integrity_check_failed",
			fmt.Sprintf("database %s failed integrity check: %s", name, integrityResult))
	}

	logging.Info("catalog: opened %s database at %s (mmap_disabled=%v)", name, path, r.opts.MmapDisabled)

	return &handle{db: db, path: path}, nil
}

func (r *Registry) conn(name Name) (*handle, error) {
	h, ok := r.handles[name]
	if !ok {
		return nil, errs.New(errs.Validation, "catalog.unknown_db", fmt.Sprintf("unknown logical database %q", name))
	}
	return h, nil
}

// Close closes all four database connections.
func (r *Registry) Close() error {
	var firstErr error
	for name, h := range r.handles {
		if h == nil || h.db == nil {
			continue
		}
		if err := h.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
	}
	return firstErr
}

// CheckStorageHealth implements metrics.StorageHealthChecker: it stats and
// opens each database's main/-wal/-shm files to detect storage failures
// that would otherwise surface as a mysterious SIGBUS or I/O error deep
// inside SQLite.
func (r *Registry) CheckStorageHealth() {
	for name, h := range r.handles {
		files := []struct {
			path string
			kind string
		}{
			{h.path, "main"},
			{h.path + "-wal", "wal"},
			{h.path + "-shm", "shm"},
		}
		for _, f := range files {
			fh, err := os.Open(f.path)
			if err != nil {
				if os.IsNotExist(err) && f.kind != "main" {
					continue
				}
				logging.Error("catalog: storage health check failed for %s (%s/%s): %v", f.path, name, f.kind, err)
				metrics.DBStorageErrors.WithLabelValues(string(name), f.kind).Inc()
				continue
			}
			_ = fh.Close()
		}
	}
}

// UpdateDBMetrics implements metrics.StorageHealthChecker.
func (r *Registry) UpdateDBMetrics() {
	for name, h := range r.handles {
		stats := h.db.Stats()
		metrics.DBConnectionsOpen.WithLabelValues(string(name)).Set(float64(stats.OpenConnections))
	}
}

// PathFor returns the on-disk path of a logical database, for the metrics
// collector's size-on-disk gauge.
func (r *Registry) PathFor(name Name) string {
	h, ok := r.handles[name]
	if !ok {
		return ""
	}
	return h.path
}
