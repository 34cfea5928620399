package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"photonix-core/internal/errs"
	"photonix-core/internal/logging"
	"photonix-core/internal/metrics"
)

const (
	busyRetryMax     = 6
	busyRetryBaseMs  = 50
	busyRetryCapMs   = 800
	batchChunkSize   = 500
	slowQuerySeconds = 0.1
)

type txKey struct{ db Name }

// txState is the async-context-local transaction stack for one logical
// database: the outermost WithTransaction opens it at depth 0 (BEGIN), and
// nested calls within the same context chain increment depth and issue
// SAVEPOINTs instead.
type txState struct {
	tx    *sql.Tx
	depth int
}

func observeQuery(db Name, operation string) func(error) {
	start := time.Now()
	return func(err error) {
		duration := time.Since(start).Seconds()
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.DBQueryTotal.WithLabelValues(string(db), operation, status).Inc()
		metrics.DBQueryDuration.WithLabelValues(string(db), operation).Observe(duration)
		if duration > slowQuerySeconds {
			logging.Warn("catalog: slow query db=%s op=%s duration=%.3fs status=%s", db, operation, duration, status)
		}
	}
}

// execer abstracts over *sql.DB and *sql.Tx so Query/Exec can run either
// against the live connection or the active transaction for this context.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Registry) execerFor(ctx context.Context, db Name) (execer, error) {
	if state, ok := ctx.Value(txKey{db}).(*txState); ok {
		return state.tx, nil
	}
	h, err := r.conn(db)
	if err != nil {
		return nil, err
	}
	return h.db, nil
}

// Query runs a read query and returns the raw *sql.Rows. Callers must Close().
func (r *Registry) Query(ctx context.Context, db Name, operation, query string, args ...any) (*sql.Rows, error) {
	ex, err := r.execerFor(ctx, db)
	if err != nil {
		return nil, err
	}
	done := observeQuery(db, operation)
	rows, err := ex.QueryContext(ctx, query, args...)
	done(err)
	if err != nil {
		return nil, errs.Wrap(errs.External, "catalog.query", err)
	}
	return rows, nil
}

// QueryOne runs a query expected to return at most one row.
func (r *Registry) QueryOne(ctx context.Context, db Name, operation, query string, args ...any) (*sql.Row, error) {
	ex, err := r.execerFor(ctx, db)
	if err != nil {
		return nil, err
	}
	done := observeQuery(db, operation)
	row := ex.QueryRowContext(ctx, query, args...)
	done(nil)
	return row, nil
}

// Exec runs a write statement and returns rows affected.
func (r *Registry) Exec(ctx context.Context, db Name, operation, query string, args ...any) (int64, error) {
	ex, err := r.execerFor(ctx, db)
	if err != nil {
		return 0, err
	}
	done := observeQuery(db, operation)
	result, err := ex.ExecContext(ctx, query, args...)
	done(err)
	if err != nil {
		return 0, errs.Wrap(errs.External, "catalog.exec", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		metrics.DBRowsAffected.WithLabelValues(operation).Observe(float64(rows))
	}
	return rows, nil
}

// Batch prepares query once and executes it once per row in rows, chunking
// at chunkSize (default batchChunkSize if 0). If called outside a
// transaction it wraps the whole batch in BEGIN IMMEDIATE; inside one, it
// joins the active transaction/savepoint.
func (r *Registry) Batch(ctx context.Context, db Name, operation, query string, rows [][]any, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = batchChunkSize
	}

	run := func(ctx context.Context) (int64, error) {
		ex, err := r.execerFor(ctx, db)
		if err != nil {
			return 0, err
		}
		var total int64
		for start := 0; start < len(rows); start += chunkSize {
			end := start + chunkSize
			if end > len(rows) {
				end = len(rows)
			}
			done := observeQuery(db, operation+"_batch")
			for _, args := range rows[start:end] {
				result, err := ex.ExecContext(ctx, query, args...)
				if err != nil {
					done(err)
					return total, errs.Wrap(errs.External, "catalog.batch", err)
				}
				n, _ := result.RowsAffected()
				total += n
			}
			done(nil)
		}
		return total, nil
	}

	if _, ok := ctx.Value(txKey{db}).(*txState); ok {
		return run(ctx)
	}

	var total int64
	err := r.WithTransaction(ctx, db, func(ctx context.Context) error {
		n, err := run(ctx)
		total = n
		return err
	}, "IMMEDIATE")
	return total, err
}

// WithTransaction runs fn within a transaction on db. If the context already
// carries an open transaction for this database (a nested call from within
// another WithTransaction), it issues a SAVEPOINT instead of a new BEGIN;
// savepoint failures are not retried. The outermost call retries
// SQLITE_BUSY up to busyRetryMax times with exponential backoff and jitter.
func (r *Registry) WithTransaction(ctx context.Context, db Name, fn func(ctx context.Context) error, mode string) error {
	if mode == "" {
		mode = "IMMEDIATE"
	}

	if state, ok := ctx.Value(txKey{db}).(*txState); ok {
		state.depth++
		sp := fmt.Sprintf("sp_%d", state.depth)
		if _, err := state.tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			state.depth--
			return errs.Wrap(errs.External, "catalog.savepoint", err)
		}

		err := fn(ctx)

		if err != nil {
			if _, rbErr := state.tx.ExecContext(ctx, "ROLLBACK TO "+sp); rbErr != nil {
				state.depth--
				return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
			}
			state.depth--
			return err
		}

		_, relErr := state.tx.ExecContext(ctx, "RELEASE "+sp)
		state.depth--
		if relErr != nil {
			return errs.Wrap(errs.External, "catalog.release_savepoint", relErr)
		}
		return nil
	}

	h, err := r.conn(db)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < busyRetryMax; attempt++ {
		h.mu.Lock()
		start := time.Now()
		tx, err := h.db.BeginTx(ctx, nil)
		if err == nil {
			_, err = tx.ExecContext(ctx, "BEGIN "+mode)
		}
		if err != nil {
			h.mu.Unlock()
			if isBusy(err) {
				metrics.DBTransactionRetries.WithLabelValues(string(db)).Inc()
				lastErr = err
				backoff(attempt)
				continue
			}
			return errs.Wrap(errs.External, "catalog.begin", err)
		}

		state := &txState{tx: tx, depth: 0}
		childCtx := context.WithValue(ctx, txKey{db}, state)

		fnErr := fn(childCtx)
		duration := time.Since(start).Seconds()

		if fnErr != nil {
			metrics.DBTransactionDuration.WithLabelValues(string(db), "rollback").Observe(duration)
			rbErr := tx.Rollback()
			h.mu.Unlock()
			if rbErr != nil {
				return errors.Join(fnErr, fmt.Errorf("rollback also failed: %w", rbErr))
			}
			return fnErr
		}

		commitErr := tx.Commit()
		h.mu.Unlock()

		if commitErr != nil {
			if isBusy(commitErr) {
				metrics.DBTransactionRetries.WithLabelValues(string(db)).Inc()
				lastErr = commitErr
				backoff(attempt)
				continue
			}
			metrics.DBTransactionDuration.WithLabelValues(string(db), "rollback").Observe(duration)
			return errs.Wrap(errs.External, "catalog.commit", commitErr)
		}

		metrics.DBTransactionDuration.WithLabelValues(string(db), "commit").Observe(duration)
		return nil
	}

	return errs.Wrap(errs.Unavailable, "catalog.busy_retries_exhausted", lastErr)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func backoff(attempt int) {
	delay := busyRetryBaseMs << attempt
	if delay > busyRetryCapMs {
		delay = busyRetryCapMs
	}
	jitter := rand.Intn(delay/2 + 1)
	time.Sleep(time.Duration(delay+jitter) * time.Millisecond)
}
