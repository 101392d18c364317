// Package cache implements the incremental-compile cache: compiled Lua
// source keyed by a content hash of the PMML source (see KeyFor), so the
// HTTP compile service can skip re-running the pipeline on an unchanged
// model, backed by real storage instead of an in-process map.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	_ "github.com/mattn/go-sqlite3"
)

// ErrMiss names a cache miss. Neither Get implementation returns it: a key
// with no cached entry is reported through the bool return with a nil error.
var ErrMiss = errors.New("cache: miss")

// KeyFor hashes the bytes that fully determine one compilation's output
// (the PMML source plus anything else that changes the emitted Lua, e.g.
// the MaxLocals budget) into a cache key.
func KeyFor(parts ...[]byte) string {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Store is the interface both backends satisfy.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, source string) error
	Close() error
}

// SQLiteStore is the local, on-disk default backend.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a cache database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS compile_cache (
		key TEXT PRIMARY KEY,
		source TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Get returns the cached Lua source for key, if present.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT source FROM compile_cache WHERE key = ?`, key)
	var source string
	if err := row.Scan(&source); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return source, true, nil
}

// Put stores (or replaces) the cached entry for key.
func (s *SQLiteStore) Put(ctx context.Context, key, source string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO compile_cache (key, source) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET source = excluded.source`, key, source)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
