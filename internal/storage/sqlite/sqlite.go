// Package sqlite implements coordination storage on an embedded SQLite
// database. The database lives at .aqua/aqua.db and is shared by
// unrelated short-lived processes: WAL journaling gives concurrent
// readers, the busy timeout bounds writer contention, and every
// multi-statement invariant runs under BEGIN IMMEDIATE.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/untoldecay/aqua/internal/storage"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DefaultBusyTimeout bounds how long a writer waits for the database
// lock before the operation fails with storage.ErrBusy.
const DefaultBusyTimeout = 5 * time.Second

// Store is the SQLite-backed implementation of storage.Storage.
type Store struct {
	db   *sql.DB
	path string
}

var _ storage.Storage = (*Store)(nil)

// Option configures a Store during New.
type Option func(*options)

type options struct {
	busyTimeout time.Duration
}

// WithBusyTimeout overrides the default writer lock timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// New opens (creating if necessary) the database at path, applies the
// schema and any pending migrations, and returns a ready store.
func New(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// The ncruces driver requires the file: prefix; pragmas ride along
	// on the connection string so every pooled connection gets them.
	// _txlock=immediate makes all transactions BEGIN IMMEDIATE, taking
	// the write lock up front so competing writers queue on the busy
	// timeout instead of deadlocking mid-transaction.
	connStr := fmt.Sprintf(
		"file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, o.busyTimeout.Milliseconds(),
	)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Open is like New but refuses to create a missing database, returning
// storage.ErrNotInitialized so the CLI can point the user at `aqua init`.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, storage.ErrNotInitialized
	}
	return New(ctx, path, opts...)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// UnderlyingDB returns the raw connection pool for health checks and
// doctor commands. Direct access bypasses the storage layer.
func (s *Store) UnderlyingDB() *sql.DB {
	return s.db
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the query helpers in
// this package can run standalone or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn under BEGIN IMMEDIATE (via _txlock=immediate on the
// connection string) with commit on success and rollback on error or
// panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLiteErr(err)
	}

	var done bool
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapSQLiteErr(err)
	}
	done = true
	return nil
}

// RunInTransaction implements storage.Storage.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

// mapSQLiteErr translates driver-level lock contention into the
// storage error taxonomy.
func mapSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	if isBusyError(err) {
		return fmt.Errorf("%w: %v", storage.ErrBusy, err)
	}
	return err
}

// isBusyError checks for SQLITE_BUSY surfaced through the driver.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// isUniqueConstraintError checks if err is a UNIQUE constraint
// violation (duplicate agent name, duplicate file lock).
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
