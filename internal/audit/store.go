// Package audit keeps a durable trail of override transitions. Unlike the
// in-memory journal it survives restarts, so an operator can still see who
// applied an override and how it ended after the daemon was bounced.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/holdover/internal/clock"
)

// DefaultRetention is how long events are kept when no retention is given.
const DefaultRetention = 90 * 24 * time.Hour

// ErrClosed is returned after Close.
var ErrClosed = errors.New("audit store is closed")

// Event is one recorded transition.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	OpID      string    `json:"op_id"`
	Op        string    `json:"op"`
	Trigger   string    `json:"trigger"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	Resource  string    `json:"resource"`
}

// Query filters events. Zero fields do not filter.
type Query struct {
	Since   time.Time
	Until   time.Time
	Op      string
	Outcome string
	Limit   int
}

// Store persists audit events in SQLite.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	closed    bool
	retention time.Duration
	clock     clock.Clock
}

// NewStore opens (or creates) the audit database at dbPath. ":memory:" keeps
// the trail for the life of the process only.
func NewStore(dbPath string, retention time.Duration, clk clock.Clock) (*Store, error) {
	inMemory := dbPath == ":memory:"
	dsn := dbPath
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			op_id TEXT NOT NULL,
			op TEXT NOT NULL,
			trigger TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT,
			resource TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_transitions_ts ON transitions(ts);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{db: db, retention: retention, clock: clock.OrReal(clk)}, nil
}

// Write persists evt. A zero Timestamp is stamped with the store's clock.
func (s *Store) Write(ctx context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (ts, op_id, op, trigger, outcome, error, resource)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, evt.Timestamp.UnixMilli(), evt.OpID, evt.Op, evt.Trigger, evt.Outcome, evt.Error, evt.Resource)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *Store) Query(ctx context.Context, q Query) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var (
		where []string
		args  []any
	)
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, q.Until.UnixMilli())
	}
	if q.Op != "" {
		where = append(where, "op = ?")
		args = append(args, q.Op)
	}
	if q.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, q.Outcome)
	}

	query := "SELECT id, ts, op_id, op, trigger, outcome, error, resource FROM transitions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			evt      Event
			ts       int64
			errText  sql.NullString
			resource sql.NullString
		)
		if err := rows.Scan(&evt.ID, &ts, &evt.OpID, &evt.Op, &evt.Trigger, &evt.Outcome, &errText, &resource); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.Timestamp = time.UnixMilli(ts).UTC()
		evt.Error = errText.String
		evt.Resource = resource.String
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Prune removes events older than the retention period and reports how many
// went.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	cutoff := s.clock.Now().Add(-s.retention).UnixMilli()
	result, err := s.db.ExecContext(ctx, "DELETE FROM transitions WHERE ts < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transitions").Scan(&count)
	return count, err
}

// Close closes the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
