// Package store persists sealed journal records in SQLite.
//
// The database has three partitions:
//
//   - entries: one sealed entry per calendar date (id = date)
//   - rollups: one sealed reflection per (type, periodKey), indexed by type
//   - meta:    key/value pairs holding salts and the passphrase hash
//
// The store never sees plaintext. Ciphertext and nonces are stored as the
// base64 strings produced at the codec boundary. Timestamps are fixed-width
// UTC strings so that lexical comparison equals chronological comparison.
//
// Every single-record write is one statement and therefore atomic. Driver
// and I/O failures are reported wrapped in ErrStorageUnavailable.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

const (
	// FileMode is applied to the database file.
	FileMode = 0600
	// DirMode is applied to the directory holding the database.
	DirMode = 0700

	// TimestampLayout is the only accepted timestamp format.
	TimestampLayout = "2006-01-02T15:04:05.000Z"
)

// Sentinel errors returned by the store.
var (
	// ErrNotFound indicates no record exists with the requested id.
	ErrNotFound = errors.New("store: record not found")

	// ErrStorageUnavailable indicates the underlying database failed.
	ErrStorageUnavailable = errors.New("store: storage unavailable")

	// ErrInvalidRecord indicates a record violates the store's invariants.
	ErrInvalidRecord = errors.New("store: invalid record")
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DBTX is the subset of database/sql used by the store.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed record store.
type Store struct {
	conn *sql.DB
	db   DBTX
	path string
}

// Open opens (creating if needed) the database at path and applies
// migrations. Pass MemoryDSN for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
			return nil, unavailable("open", err)
		}
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open", err)
	}

	// One connection serializes writers and keeps a :memory: database alive.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if path != MemoryDSN {
		if err := os.Chmod(path, FileMode); err != nil {
			_ = conn.Close()
			return nil, unavailable("chmod", err)
		}
	}

	return &Store{conn: conn, db: conn, path: path}, nil
}

func migrate(ctx context.Context, conn *sql.DB) error {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, fsys)
	if err != nil {
		return fmt.Errorf("store: failed to create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return unavailable("close", err)
	}
	return nil
}

// Path returns the database path or MemoryDSN.
func (s *Store) Path() string {
	return s.path
}

// WithTx runs fn against a transaction-bound Store and commits when fn
// returns nil. The transaction is rolled back on error or panic. Calling
// WithTx on a Store that is already transaction-bound joins that transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) (err error) {
	if _, ok := s.db.(*sql.Tx); ok {
		return fn(ctx, s)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = unavailable("commit", cerr)
		}
	}()

	return fn(ctx, &Store{conn: s.conn, db: tx, path: s.path})
}

// Clear deletes every entry, rollup and meta record in one transaction.
func (s *Store) Clear(ctx context.Context) error {
	return s.WithTx(ctx, func(ctx context.Context, tx *Store) error {
		for _, table := range []string{"entries", "rollups", "meta"} {
			if _, err := tx.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return unavailable("clear "+table, err)
			}
		}
		return nil
	})
}

// Size returns the database size in bytes as reported by SQLite.
func (s *Store) Size(ctx context.Context) (int64, error) {
	var pages, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages); err != nil {
		return 0, unavailable("size", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, unavailable("size", err)
	}
	return pages * pageSize, nil
}

// Timestamp formats t in the store's fixed-width UTC layout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a timestamp written by Timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil || len(s) != len(TimestampLayout) {
		return time.Time{}, fmt.Errorf("%w: timestamp %q is not %s", ErrInvalidRecord, s, TimestampLayout)
	}
	return t, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %w", op, ErrStorageUnavailable, err)
}
