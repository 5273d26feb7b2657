// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/storefront/internal/storage"
)

// Ensure both views implement storage.Store
var (
	_ storage.Store = (*SQLiteStore)(nil)
	_ storage.Store = (*Namespace)(nil)
)

// SQLiteStore implements storage.Store using SQLite. Keys live in the empty
// namespace; use Namespace for per-user views of the same database.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes come from one process; a busy timeout covers concurrent
	// sessions of the server sharing the file.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Namespace returns a view of the store whose keys are isolated under ns.
func (s *SQLiteStore) Namespace(ns string) *Namespace {
	return &Namespace{db: s.db, ns: ns}
}

// Get retrieves a value from the empty namespace.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	return get(ctx, s.db, "", key)
}

// Set stores a value in the empty namespace.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	return set(ctx, s.db, "", key, value)
}

// Delete removes a key from the empty namespace.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return del(ctx, s.db, "", key)
}

// Namespace is a storage.Store scoped to one namespace of a SQLiteStore.
type Namespace struct {
	db *sql.DB
	ns string
}

// Get retrieves a value from the namespace.
func (n *Namespace) Get(ctx context.Context, key string) (string, bool, error) {
	return get(ctx, n.db, n.ns, key)
}

// Set stores a value in the namespace.
func (n *Namespace) Set(ctx context.Context, key, value string) error {
	return set(ctx, n.db, n.ns, key, value)
}

// Delete removes a key from the namespace.
func (n *Namespace) Delete(ctx context.Context, key string) error {
	return del(ctx, n.db, n.ns, key)
}

func get(ctx context.Context, db *sql.DB, ns, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE namespace = ? AND key = ?",
		ns, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func set(ctx context.Context, db *sql.DB, ns, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, ns, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func del(ctx context.Context, db *sql.DB, ns, key string) error {
	_, err := db.ExecContext(ctx,
		"DELETE FROM kv WHERE namespace = ? AND key = ?",
		ns, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
