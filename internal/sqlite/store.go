// Package sqlite provides access to result stores: opening and creating store
// files, the typed schema catalog, the canonical result-store DDL, info table
// accessors and atomic output staging.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/mesh-intelligence/varstore/pkg/types"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is an open result-store file. Every Store holds exactly one
// connection so ATTACH and TEMP tables are visible to all statements.
type Store struct {
	db   *sql.DB
	path string
}

// pragmas applied to every connection. Stores are owned exclusively for the
// duration of an operation, so durability settings stay at the defaults.
var pragmas = []string{
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// Open opens an existing store. Unlike sql.Open it never creates the file.
func Open(ctx context.Context, path string) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, types.NewStoreIOError(path, "open", err)
	}
	if info.IsDir() {
		return nil, types.NewStoreIOError(path, "open", fmt.Errorf("%w: is a directory", types.ErrNotStoreFile))
	}
	return openDB(ctx, path)
}

// Create creates a new empty store file, replacing any existing file.
func Create(ctx context.Context, path string) (*Store, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, types.NewStoreIOError(path, "create", err)
	}
	return openDB(ctx, path)
}

func openDB(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, types.NewStoreIOError(path, "open", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, types.NewStoreIOError(path, "open", fmt.Errorf("set pragma: %w", err))
		}
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the connection. It is safe to call more than once.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.NewStoreIOError(s.path, "begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return types.NewStoreIOError(s.path, "commit", err)
	}
	return nil
}

// Attach makes another store file visible under alias on this connection.
// ATTACH cannot run inside a transaction.
func (s *Store) Attach(ctx context.Context, path, alias string) error {
	if _, err := s.db.ExecContext(ctx, "ATTACH DATABASE ? AS "+QuoteIdent(alias), path); err != nil {
		return types.NewStoreIOError(path, "attach", err)
	}
	return nil
}

// Detach reverses Attach.
func (s *Store) Detach(ctx context.Context, alias string) error {
	if _, err := s.db.ExecContext(ctx, "DETACH DATABASE "+QuoteIdent(alias)); err != nil {
		return types.NewStoreIOError(s.path, "detach", err)
	}
	return nil
}
