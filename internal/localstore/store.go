// Package localstore persists device-local state (offline queue, challenge, markers)
// in SQLite behind typed keys.
package localstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

var (
	// ErrNotFound is returned when a key has no stored value.
	ErrNotFound = errors.New("key not found")
	// ErrMalformed is returned when a stored value fails to decode or validate.
	ErrMalformed = errors.New("malformed stored value")
)

// Store is a key-value store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

// DefaultPath returns ~/.config/fittrack/device.db
func DefaultPath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "fittrack", "device.db"), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		const ddl = `
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		);`
		if _, err := s.db.Exec(ddl); err != nil {
			return err
		}
	}

	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) getRaw(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) putRaw(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys lists stored keys with the given prefix, in order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Update runs fn on the current value of key inside a transaction and stores the result.
// A missing key hands fn the zero value.
func Update[T any](ctx context.Context, s *Store, key Key[T], fn func(T) (T, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current T
	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key.name).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("get %q: %w", key.name, err)
	default:
		if current, err = key.decode(raw); err != nil {
			return err
		}
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	body, err := key.encode(next)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key.name, body, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("put %q: %w", key.name, err)
	}
	return tx.Commit()
}

// Key is a typed key. Values are JSON encoded, decoded strictly and validated on both paths.
type Key[T any] struct {
	name     string
	validate func(T) error
}

// NewKey declares a typed key. validate may be nil.
func NewKey[T any](name string, validate func(T) error) Key[T] {
	return Key[T]{name: name, validate: validate}
}

// Name returns the storage key.
func (k Key[T]) Name() string {
	return k.name
}

func (k Key[T]) encode(value T) ([]byte, error) {
	if k.validate != nil {
		if err := k.validate(value); err != nil {
			return nil, fmt.Errorf("%s: %w", k.name, err)
		}
	}
	body, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", k.name, err)
	}
	return body, nil
}

func (k Key[T]) decode(raw []byte) (T, error) {
	var value T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&value); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", ErrMalformed, k.name, err)
	}
	if k.validate != nil {
		if err := k.validate(value); err != nil {
			var zero T
			return zero, fmt.Errorf("%w: %s: %v", ErrMalformed, k.name, err)
		}
	}
	return value, nil
}

// Get loads the value stored under key. It returns ErrNotFound when absent and
// ErrMalformed when the stored value does not decode or validate.
func Get[T any](ctx context.Context, s *Store, key Key[T]) (T, error) {
	raw, err := s.getRaw(ctx, key.name)
	if err != nil {
		var zero T
		return zero, err
	}
	return key.decode(raw)
}

// Put validates and stores value under key.
func Put[T any](ctx context.Context, s *Store, key Key[T], value T) error {
	body, err := key.encode(value)
	if err != nil {
		return err
	}
	return s.putRaw(ctx, key.name, body)
}

// Remove deletes the value stored under key.
func Remove[T any](ctx context.Context, s *Store, key Key[T]) error {
	return s.Delete(ctx, key.name)
}
