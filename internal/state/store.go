// Package state is the durable bucketed key-value store behind the saved
// override record.
//
// Two backends implement Store: SQLite (the default, WAL mode) and an
// embedded BadgerDB. Multi-key writes and deletes are single transactions
// on both, so a record spread over several keys is never half written.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"grimm.is/holdover/internal/clock"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrBucketExists  = errors.New("bucket already exists")
	ErrBucketMissing = errors.New("bucket does not exist")
	ErrStoreClosed   = errors.New("store is closed")
)

// Store is a set of named buckets of byte values.
type Store interface {
	CreateBucket(ctx context.Context, name string) error
	ListBuckets(ctx context.Context) ([]string, error)

	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// GetMany reads from one snapshot and omits keys that do not exist.
	GetMany(ctx context.Context, bucket string, keys ...string) (map[string][]byte, error)
	// SetMany upserts every value or none. The bucket must exist.
	SetMany(ctx context.Context, bucket string, values map[string][]byte) error
	// DeleteMany removes every key or none. Missing keys are ignored.
	DeleteMany(ctx context.Context, bucket string, keys ...string) error

	Close() error
}

// Maintainer is implemented by stores that can reclaim space in the
// background.
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// EnsureBucket creates a bucket, treating an existing bucket as success.
func EnsureBucket(ctx context.Context, s Store, name string) error {
	if err := s.CreateBucket(ctx, name); err != nil && !errors.Is(err, ErrBucketExists) {
		return err
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS buckets (
	name       TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	bucket     TEXT NOT NULL REFERENCES buckets(name),
	key        TEXT NOT NULL,
	value      BLOB,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (bucket, key)
);`

// Options configures the SQLite store.
type Options struct {
	Path    string      // ":memory:" keeps everything in RAM
	WALMode bool        // ignored for ":memory:"
	Clock   clock.Clock // stamps created_at/updated_at
}

// DefaultOptions returns WAL-mode options for path.
func DefaultOptions(path string) Options {
	return Options{Path: path, WALMode: true}
}

// SQLiteStore implements Store on database/sql with the pure-Go sqlite driver.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock

	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens the database at opts.Path and creates the schema.
func NewSQLiteStore(opts Options) (*SQLiteStore, error) {
	inMemory := opts.Path == ":memory:"
	dsn := opts.Path
	if opts.WALMode && !inMemory {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", opts.Path, err)
	}
	// Each pooled connection to ":memory:" would see its own empty database.
	if inMemory {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, clock: clock.OrReal(opts.Clock)}, nil
}

// tx runs fn in a transaction, committing when it returns nil. Writers hold
// the store lock exclusively so Close cannot race an open transaction.
func (s *SQLiteStore) tx(ctx context.Context, write bool, fn func(*sql.Tx) error) error {
	if write {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) CreateBucket(ctx context.Context, name string) error {
	return s.tx(ctx, true, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO buckets (name, created_at) VALUES (?, ?)", name, s.clock.Now())
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
			return ErrBucketExists
		}
		return err
	})
}

func (s *SQLiteStore) ListBuckets(ctx context.Context) ([]string, error) {
	var names []string
	err := s.tx(ctx, false, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT name FROM buckets ORDER BY name")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	return names, err
}

func (s *SQLiteStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	got, err := s.GetMany(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	v, ok := got[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *SQLiteStore) GetMany(ctx context.Context, bucket string, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	err := s.tx(ctx, false, func(tx *sql.Tx) error {
		for _, key := range keys {
			var v []byte
			err := tx.QueryRowContext(ctx, "SELECT value FROM entries WHERE bucket = ? AND key = ?", bucket, key).Scan(&v)
			switch {
			case errors.Is(err, sql.ErrNoRows):
			case err != nil:
				return err
			default:
				out[key] = v
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) SetMany(ctx context.Context, bucket string, values map[string][]byte) error {
	return s.tx(ctx, true, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM buckets WHERE name = ?", bucket).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBucketMissing
		}
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, key := range slices.Sorted(maps.Keys(values)) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO entries (bucket, key, value, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				bucket, key, values[key], now)
			if err != nil {
				return fmt.Errorf("write %s/%s: %w", bucket, key, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteMany(ctx context.Context, bucket string, keys ...string) error {
	return s.tx(ctx, true, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE bucket = ? AND key = ?", bucket, key); err != nil {
				return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
			}
		}
		return nil
	})
}

// Maintain truncates the write-ahead log back into the main database file.
func (s *SQLiteStore) Maintain(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close closes the database. Later calls are no-ops.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
