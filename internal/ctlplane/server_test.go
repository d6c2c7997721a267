package ctlplane

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/holdover/internal/audit"
	"grimm.is/holdover/internal/badge"
	"grimm.is/holdover/internal/clock"
	"grimm.is/holdover/internal/events"
	"grimm.is/holdover/internal/logging"
	"grimm.is/holdover/internal/override"
	"grimm.is/holdover/internal/policy"
	"grimm.is/holdover/internal/state"
)

var start = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type rig struct {
	server   *Server
	client   *Client
	resource *policy.Memory
	journal  *events.Journal
	clock    *clock.MockClock
	socket   string
}

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
}

func newRig(t *testing.T) *rig {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewMockClock(start)

	backing, err := state.NewSQLiteStore(state.DefaultOptions(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { backing.Close() })
	store, err := override.NewPolicyStore(ctx, backing, clk)
	require.NoError(t, err)

	hub := events.NewHub()
	resource := policy.NewMemory("custom")
	ctrl, err := override.NewController(override.Options{
		Resource: resource,
		Store:    store,
		Badge:    badge.New(hub),
		Hub:      hub,
		Clock:    clk,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	activator, err := override.NewActivator(ctrl, `^https://smalruby\.app/`)
	require.NoError(t, err)

	journal := events.NewJournal(hub, 16)
	journal.Start()
	t.Cleanup(journal.Stop)

	srv, err := NewServer(Options{
		Controller: ctrl,
		Activator:  activator,
		Journal:    journal,
		Logger:     quietLogger(),
		Clock:      clk,
	})
	require.NoError(t, err)

	socket := filepath.Join(t.TempDir(), "ctl.sock")
	require.NoError(t, srv.Start(socket))
	t.Cleanup(func() { srv.Stop() })

	client, err := NewClient(socket)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return &rig{server: srv, client: client, resource: resource, journal: journal, clock: clk, socket: socket}
}

func (r *rig) value(t *testing.T) string {
	t.Helper()
	v, err := r.resource.Get(context.Background())
	require.NoError(t, err)
	return v
}

func TestRPC_ChangeRevert(t *testing.T) {
	r := newRig(t)

	reply, err := r.client.Change()
	require.NoError(t, err)
	assert.Equal(t, "OK", reply.Response)
	assert.Equal(t, override.OutcomeApplied, reply.Outcome)
	assert.Empty(t, reply.Error)
	assert.Equal(t, policy.DefaultMode, r.value(t))

	reply, err = r.client.Change()
	require.NoError(t, err)
	assert.Equal(t, override.OutcomeAlreadyApplied, reply.Outcome)

	reply, err = r.client.Revert()
	require.NoError(t, err)
	assert.Equal(t, "OK", reply.Response)
	assert.Equal(t, override.OutcomeReverted, reply.Outcome)
	assert.Equal(t, "custom", r.value(t))
}

func TestRPC_Status(t *testing.T) {
	r := newRig(t)
	_, err := r.client.Change()
	require.NoError(t, err)
	r.clock.Advance(time.Minute)

	reply, err := r.client.GetStatus()
	require.NoError(t, err)
	assert.True(t, reply.Status.Active)
	assert.Equal(t, badge.On, reply.Status.Badge)
	require.NotNil(t, reply.Status.Record)
	assert.Equal(t, "custom", reply.Status.Record.PriorPolicy)
	assert.Equal(t, 4*time.Minute, reply.Status.Remaining)
	assert.Equal(t, time.Minute, reply.Uptime)
	assert.NotEmpty(t, reply.Version)
}

func TestRPC_CheckTTL(t *testing.T) {
	r := newRig(t)

	reply, err := r.client.CheckTTL()
	require.NoError(t, err)
	assert.Equal(t, override.SweepIdle, reply.Sweep.Result)

	_, err = r.client.Change()
	require.NoError(t, err)
	r.clock.Advance(override.DefaultTTL)

	reply, err = r.client.CheckTTL()
	require.NoError(t, err)
	assert.Equal(t, override.SweepExpired, reply.Sweep.Result)
	assert.Equal(t, override.OutcomeReverted, reply.Sweep.Outcome)
	assert.Equal(t, "custom", r.value(t))
}

func TestRPC_Activate(t *testing.T) {
	r := newRig(t)

	reply, err := r.client.Activate("https://example.com/")
	require.NoError(t, err)
	assert.False(t, reply.Activation.Matched)
	assert.Equal(t, "custom", r.value(t))

	reply, err = r.client.Activate("https://smalruby.app/")
	require.NoError(t, err)
	assert.True(t, reply.Activation.Matched)
	assert.Equal(t, override.OutcomeApplied, reply.Activation.Outcome)
}

func TestRPC_History(t *testing.T) {
	r := newRig(t)
	r.client.Change()
	r.client.Revert()

	require.Eventually(t, func() bool { return len(r.journal.Recent(0)) == 2 }, time.Second, 5*time.Millisecond)

	entries, err := r.client.GetHistory(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, override.OpApply, entries[0].Op)
	assert.Equal(t, override.TriggerCommand, entries[0].Trigger)
	assert.Equal(t, string(override.OutcomeReverted), entries[1].Outcome)
	assert.NotEqual(t, entries[0].OpID, entries[1].OpID)
}

func TestRPC_Logs(t *testing.T) {
	r := newRig(t)
	logging.GetAppLogBuffer().Clear()
	r.client.Change()

	entries, err := r.client.GetLogs(&GetLogsArgs{Source: "ctlplane", Limit: 5})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "change: applied", entries[0].Message)
}

type failingController struct {
	mock.Mock
}

func (m *failingController) Dispatch(ctx context.Context, command string) (override.Outcome, error) {
	args := m.Called(command)
	return args.Get(0).(override.Outcome), args.Error(1)
}

func (m *failingController) Status(ctx context.Context) override.Status {
	return override.Status{}
}

func (m *failingController) CheckTTL(ctx context.Context) (override.Sweep, error) {
	args := m.Called()
	return args.Get(0).(override.Sweep), args.Error(1)
}

func TestServer_FailuresStillAcknowledged(t *testing.T) {
	ctrl := new(failingController)
	ctrl.On("Dispatch", "revert").Return(override.OutcomeRestoreFailed, override.ErrRestoreFailed)
	ctrl.On("CheckTTL").Return(override.Sweep{Result: override.SweepError}, override.ErrLoadFailed)

	srv, err := NewServer(Options{Controller: ctrl, Logger: quietLogger()})
	require.NoError(t, err)

	var reply CommandReply
	require.NoError(t, srv.Revert(&Empty{}, &reply))
	assert.Equal(t, "OK", reply.Response)
	assert.Equal(t, override.OutcomeRestoreFailed, reply.Outcome)
	assert.Contains(t, reply.Error, "restore")

	var sweep CheckTTLReply
	require.NoError(t, srv.CheckTTL(&Empty{}, &sweep))
	assert.Equal(t, override.SweepError, sweep.Sweep.Result)
	assert.NotEmpty(t, sweep.Error)

	assert.Error(t, srv.Activate(&ActivateArgs{URL: "https://smalruby.app/"}, &ActivateReply{}))
	assert.Error(t, srv.GetHistory(&GetHistoryArgs{}, &GetHistoryReply{}))
	assert.Error(t, srv.GetAudit(&GetAuditArgs{}, &GetAuditReply{}))
}

func TestRPC_Audit(t *testing.T) {
	ctx := context.Background()
	trail, err := audit.NewStore(":memory:", 0, nil)
	require.NoError(t, err)
	defer trail.Close()
	require.NoError(t, trail.Write(ctx, audit.Event{Timestamp: start, OpID: "a", Op: override.OpApply, Trigger: override.TriggerActivate, Outcome: "applied"}))
	require.NoError(t, trail.Write(ctx, audit.Event{Timestamp: start.Add(time.Minute), OpID: "b", Op: override.OpRevert, Trigger: override.TriggerSweep, Outcome: "reverted"}))

	srv, err := NewServer(Options{Controller: new(failingController), Audit: trail, Logger: quietLogger()})
	require.NoError(t, err)
	socket := filepath.Join(t.TempDir(), "ctl.sock")
	require.NoError(t, srv.Start(socket))
	defer srv.Stop()

	client, err := NewClient(socket)
	require.NoError(t, err)
	defer client.Close()

	evts, err := client.GetAudit(&GetAuditArgs{})
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "b", evts[0].OpID)

	evts, err = client.GetAudit(&GetAuditArgs{Op: override.OpApply})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, override.TriggerActivate, evts[0].Trigger)
	assert.True(t, start.Equal(evts[0].Timestamp))
}

func TestNewServer_RequiresController(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestServer_StopRemovesSocket(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.server.Stop())

	_, err := os.Stat(r.socket)
	assert.True(t, errors.Is(err, os.ErrNotExist), "socket file should be gone, got %v", err)

	_, err = r.client.GetStatus()
	assert.Error(t, err)
	assert.NoError(t, r.server.Stop(), "second Stop is a no-op")
}

func TestClient_Reconnects(t *testing.T) {
	r := newRig(t)

	// Drop the client's connection underneath it.
	r.client.mu.Lock()
	r.client.client.Close()
	r.client.mu.Unlock()

	reply, err := r.client.GetStatus()
	require.NoError(t, err)
	assert.False(t, reply.Status.Active)
}

func TestNewClient_NoServer(t *testing.T) {
	_, err := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	assert.Error(t, err)
}
