// Package store implements the Local Store, Outbound Queue, Search
// Index, and Inbound Apply components over an embedded sqlite database.
// They share one *sql.DB and are organized by concern across files in a
// single package rather than split apart, since every one of them needs
// the same write-transaction atomicity around the same connection.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/nodalsync/engine/internal/model"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store is the Local Store: durable, crash-safe persistence of
// Documents, PendingChanges, and SearchConfig, with a single-writer,
// multi-reader discipline enforced by mu on top of sqlite's own
// single-connection serialization.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if absent) the sqlite database at dbURL and
// applies schema migrations. Use ":memory:" for an ephemeral store,
// the pattern this package's own test suite relies on.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	db, err := sql.Open("sqlite", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// A single writer connection keeps sqlite's own locking aligned with
	// the single-writer discipline the store additionally enforces at
	// the Go level via mu.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(embedMigrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close releases the underlying database handle. Safe to call once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// DB returns the underlying connection. Exported for test setup only
// (e.g. asserting on raw rows); production code should never need it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withWriteTx runs fn inside a single write transaction, taking the
// store's write lock for its duration. All multi-row mutations
// (put_local, delete_local, apply_remote) go through this so that a
// Document update, its PendingChange write, and its FTS index update
// commit atomically, per spec §4.1.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// withReadTx runs fn inside a read-only transaction under the store's
// read lock. Readers never block each other on that lock, but they do
// wait while a writer holds withWriteTx; with the pool capped at one
// connection, their transactions also run one at a time inside sqlite.
func (s *Store) withReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()
	return fn(tx)
}
