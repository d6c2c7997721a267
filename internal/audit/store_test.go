package audit

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/holdover/internal/clock"
	"grimm.is/holdover/internal/events"
	"grimm.is/holdover/internal/logging"
)

var epoch = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T, retention time.Duration, clk clock.Clock) *Store {
	t.Helper()
	s, err := NewStore(":memory:", retention, clk)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WriteQuery(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 0, nil)

	evts := []Event{
		{Timestamp: epoch, OpID: "a", Op: "apply", Trigger: "command", Outcome: "applied"},
		{Timestamp: epoch.Add(time.Minute), OpID: "b", Op: "revert", Trigger: "sweep", Outcome: "restore_failed", Error: "disk full"},
		{Timestamp: epoch.Add(2 * time.Minute), OpID: "c", Op: "revert", Trigger: "sweep", Outcome: "reverted"},
	}
	for _, e := range evts {
		require.NoError(t, s.Write(ctx, e))
	}

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].OpID, "newest first")
	assert.Equal(t, "disk full", all[1].Error)
	assert.True(t, epoch.Equal(all[2].Timestamp))

	reverts, err := s.Query(ctx, Query{Op: "revert", Limit: 1})
	require.NoError(t, err)
	require.Len(t, reverts, 1)
	assert.Equal(t, "c", reverts[0].OpID)

	failed, err := s.Query(ctx, Query{Outcome: "restore_failed"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].OpID)

	window, err := s.Query(ctx, Query{Since: epoch.Add(30 * time.Second), Until: epoch.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "b", window[0].OpID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestStore_WriteStampsTime(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(epoch)
	s := newStore(t, 0, clk)

	require.NoError(t, s.Write(ctx, Event{OpID: "a", Op: "apply", Trigger: "command", Outcome: "applied"}))
	got, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, epoch.Equal(got[0].Timestamp))
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(epoch)
	s := newStore(t, 24*time.Hour, clk)

	require.NoError(t, s.Write(ctx, Event{Timestamp: epoch.Add(-48 * time.Hour), OpID: "old", Op: "apply", Trigger: "command", Outcome: "applied"}))
	require.NoError(t, s.Write(ctx, Event{Timestamp: epoch.Add(-time.Hour), OpID: "new", Op: "revert", Trigger: "sweep", Outcome: "reverted"}))

	removed, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	left, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].OpID)
}

func TestStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "audit.db")

	s, err := NewStore(path, 0, nil)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, Event{OpID: "a", Op: "apply", Trigger: "activate", Outcome: "applied"}))
	require.NoError(t, s.Close())

	s, err = NewStore(path, 0, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "activate", got[0].Trigger)
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 0, nil)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Write(ctx, Event{}), ErrClosed)
	_, err := s.Query(ctx, Query{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Prune(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, 0, nil)
	hub := events.NewHub()
	quiet := logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})

	r := NewRecorder(s, hub, "memory", quiet)
	r.Start()

	hub.EmitTransition(events.TransitionData{OpID: "x", Op: "apply", Trigger: "command", Outcome: "applied"})
	hub.EmitBadge("ON")
	require.Eventually(t, func() bool {
		n, _ := s.Count(ctx)
		return n == 1
	}, time.Second, 5*time.Millisecond)

	// Published right before Stop, still recorded.
	hub.EmitTransition(events.TransitionData{OpID: "y", Op: "revert", Trigger: "shutdown", Outcome: "reverted"})
	r.Stop()

	got, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "shutdown", got[0].Trigger)
	assert.Equal(t, "memory", got[0].Resource)
}
