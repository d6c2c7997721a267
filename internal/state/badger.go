package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Keys inside Badger are "b/<bucket>" for bucket markers and
// "e/<bucket>/<key>" for entries.
const (
	bucketMarker = "b/"
	entryMarker  = "e/"
)

// BadgerOptions configures the Badger store.
type BadgerOptions struct {
	Path       string // directory, ignored when InMemory
	InMemory   bool
	SyncWrites bool         // fsync every commit
	Logger     *slog.Logger // nil silences Badger
}

// DefaultBadgerOptions returns durable options for the directory path.
func DefaultBadgerOptions(path string) BadgerOptions {
	return BadgerOptions{Path: path, SyncWrites: true}
}

// slogBadger routes Badger's printf-style logging into slog.
type slogBadger struct{ l *slog.Logger }

func (b slogBadger) Errorf(f string, a ...any)   { b.l.Error(strings.TrimSpace(fmt.Sprintf(f, a...))) }
func (b slogBadger) Warningf(f string, a ...any) { b.l.Warn(strings.TrimSpace(fmt.Sprintf(f, a...))) }
func (b slogBadger) Infof(f string, a ...any)    { b.l.Debug(strings.TrimSpace(fmt.Sprintf(f, a...))) }
func (b slogBadger) Debugf(f string, a ...any)   { b.l.Debug(strings.TrimSpace(fmt.Sprintf(f, a...))) }

// BadgerStore implements Store on an embedded BadgerDB.
type BadgerStore struct {
	db       *badger.DB
	inMemory bool

	mu     sync.RWMutex
	closed bool
}

// NewBadgerStore opens or creates a Badger database.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions("").WithInMemory(true)
	if !opts.InMemory {
		if opts.Path == "" {
			return nil, errors.New("badger: path is required unless in-memory")
		}
		if err := os.MkdirAll(opts.Path, 0750); err != nil {
			return nil, fmt.Errorf("create badger dir %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1).WithLogger(nil)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(slogBadger{opts.Logger})
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, inMemory: opts.InMemory}, nil
}

func entryKey(bucket, key string) []byte {
	return []byte(entryMarker + bucket + "/" + key)
}

// run executes fn in a Badger transaction while the store is open.
func (s *BadgerStore) run(write bool, fn func(*badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	if write {
		return s.db.Update(fn)
	}
	return s.db.View(fn)
}

func bucketExists(txn *badger.Txn, name string) (bool, error) {
	_, err := txn.Get([]byte(bucketMarker + name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *BadgerStore) CreateBucket(_ context.Context, name string) error {
	return s.run(true, func(txn *badger.Txn) error {
		ok, err := bucketExists(txn, name)
		if err != nil {
			return err
		}
		if ok {
			return ErrBucketExists
		}
		return txn.Set([]byte(bucketMarker+name), nil)
	})
}

func (s *BadgerStore) ListBuckets(context.Context) ([]string, error) {
	var names []string
	err := s.run(false, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(bucketMarker)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), bucketMarker))
		}
		return nil
	})
	slices.Sort(names)
	return names, err
}

func (s *BadgerStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
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

func (s *BadgerStore) GetMany(_ context.Context, bucket string, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	err := s.run(false, func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get(entryKey(bucket, key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if out[key], err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) SetMany(_ context.Context, bucket string, values map[string][]byte) error {
	return s.run(true, func(txn *badger.Txn) error {
		ok, err := bucketExists(txn, bucket)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBucketMissing
		}
		for _, key := range slices.Sorted(maps.Keys(values)) {
			if err := txn.Set(entryKey(bucket, key), values[key]); err != nil {
				return fmt.Errorf("write %s/%s: %w", bucket, key, err)
			}
		}
		return nil
	})
}

func (s *BadgerStore) DeleteMany(_ context.Context, bucket string, keys ...string) error {
	return s.run(true, func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(entryKey(bucket, key)); err != nil {
				return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
			}
		}
		return nil
	})
}

// Maintain runs value-log GC until Badger has nothing left to rewrite.
func (s *BadgerStore) Maintain(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	if s.inMemory {
		return nil
	}
	for ctx.Err() == nil {
		switch err := s.db.RunValueLogGC(0.5); {
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
			return nil
		case err != nil:
			return err
		}
	}
	return ctx.Err()
}

// Close closes the database. Later calls are no-ops.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
