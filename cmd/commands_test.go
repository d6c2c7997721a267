package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/holdover/internal/audit"
	"grimm.is/holdover/internal/badge"
	"grimm.is/holdover/internal/ctlplane"
	"grimm.is/holdover/internal/logging"
	"grimm.is/holdover/internal/override"
)

func TestRunCommand_AlwaysAcknowledges(t *testing.T) {
	tests := []struct {
		name    string
		command string
		reply   *ctlplane.CommandReply
	}{
		{"change applied", override.CommandChange, &ctlplane.CommandReply{Response: "OK", Outcome: override.OutcomeApplied}},
		{"change busy", override.CommandChange, &ctlplane.CommandReply{Response: "OK", Outcome: override.OutcomeBusy}},
		{"revert failed", override.CommandRevert, &ctlplane.CommandReply{Response: "OK", Outcome: override.OutcomeRestoreFailed, Error: "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(ctlplane.MockControlPlaneClient)
			if tt.command == override.CommandChange {
				client.On("Change").Return(tt.reply, nil)
			} else {
				client.On("Revert").Return(tt.reply, nil)
			}

			var out bytes.Buffer
			require.NoError(t, RunCommand(client, tt.command, false, &out))
			assert.Equal(t, "{\"response\":\"OK\"}\n", out.String())
			client.AssertExpectations(t)
		})
	}
}

func TestRunCommand_Verbose(t *testing.T) {
	client := new(ctlplane.MockControlPlaneClient)
	client.On("Revert").Return(&ctlplane.CommandReply{
		Response: "OK",
		Outcome:  override.OutcomeRestoreFailed,
		Error:    "could not restore prior state",
	}, nil)

	var out bytes.Buffer
	require.NoError(t, RunCommand(client, override.CommandRevert, true, &out))
	assert.Contains(t, out.String(), "outcome: restore_failed")
	assert.Contains(t, out.String(), "error:   could not restore prior state")
}

func TestRunCommand_Errors(t *testing.T) {
	client := new(ctlplane.MockControlPlaneClient)
	client.On("Change").Return(nil, errors.New("connection refused"))

	err := RunCommand(client, override.CommandChange, false, &bytes.Buffer{})
	assert.ErrorContains(t, err, "connection refused")

	err = RunCommand(client, "toggle", false, &bytes.Buffer{})
	assert.ErrorIs(t, err, override.ErrUnknownCommand)
}

func TestRunActivate(t *testing.T) {
	client := new(ctlplane.MockControlPlaneClient)
	client.On("Activate", "https://example.com/").Return(&ctlplane.ActivateReply{
		Activation: override.Activation{URL: "https://example.com/"},
	}, nil)
	client.On("Activate", "https://smalruby.app/").Return(&ctlplane.ActivateReply{
		Activation: override.Activation{URL: "https://smalruby.app/", Matched: true, Outcome: override.OutcomeApplied},
	}, nil)
	client.On("Activate", "https://smalruby.jp/").Return(&ctlplane.ActivateReply{
		Activation: override.Activation{URL: "https://smalruby.jp/", Matched: true, Outcome: override.OutcomeSaveFailed},
		Error:      "could not record prior state",
	}, nil)

	var out bytes.Buffer
	require.NoError(t, RunActivate(client, "https://example.com/", &out))
	assert.Contains(t, out.String(), "does not match")

	out.Reset()
	require.NoError(t, RunActivate(client, "https://smalruby.app/", &out))
	assert.Equal(t, "activated: applied\n", out.String())

	out.Reset()
	err := RunActivate(client, "https://smalruby.jp/", &out)
	assert.ErrorContains(t, err, "could not record prior state")
	assert.Contains(t, out.String(), "save_failed")
}

func TestRunCheckTTL(t *testing.T) {
	tests := []struct {
		name  string
		reply *ctlplane.CheckTTLReply
		want  string
		err   bool
	}{
		{"idle", &ctlplane.CheckTTLReply{Sweep: override.Sweep{Result: override.SweepIdle}}, "no override recorded", false},
		{"pending", &ctlplane.CheckTTLReply{Sweep: override.Sweep{Result: override.SweepPending, ExpiresAt: 1750000000}}, "override active until", false},
		{"expired", &ctlplane.CheckTTLReply{Sweep: override.Sweep{Result: override.SweepExpired, Outcome: override.OutcomeReverted}}, "revert: reverted", false},
		{"error", &ctlplane.CheckTTLReply{Sweep: override.Sweep{Result: override.SweepError}, Error: "could not load prior state"}, "sweep: error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(ctlplane.MockControlPlaneClient)
			client.On("CheckTTL").Return(tt.reply, nil)

			var out bytes.Buffer
			err := RunCheckTTL(client, &out)
			if tt.err {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestRunStatus(t *testing.T) {
	reply := &ctlplane.GetStatusReply{
		Status: override.Status{
			Resource:  "chrome_policy(/etc/opt/chrome/policies/managed/holdover.json#WebRtcIPHandling)",
			Current:   "default",
			Mode:      "default",
			Active:    true,
			Record:    &override.SavedOverride{PriorPolicy: "disable_non_proxied_udp", ExpiresAt: 1750000300},
			Remaining: 4 * time.Minute,
			Badge:     badge.On,
			TTL:       5 * time.Minute,
		},
		Version: "1.2.3",
		Uptime:  90*time.Second + 300*time.Millisecond,
	}
	client := new(ctlplane.MockControlPlaneClient)
	client.On("GetStatus").Return(reply, nil)

	var out bytes.Buffer
	require.NoError(t, RunStatus(client, false, &out))
	text := out.String()
	assert.Contains(t, text, "ACTIVE")
	assert.Contains(t, text, "disable_non_proxied_udp")
	assert.Contains(t, text, "in 4m0s")
	assert.Contains(t, text, "1m30s")
	assert.Contains(t, text, "1.2.3")

	out.Reset()
	require.NoError(t, RunStatus(client, true, &out))
	assert.Contains(t, out.String(), `"active": true`)
	assert.Contains(t, out.String(), `"prior_policy": "disable_non_proxied_udp"`)
}

func TestRenderStatus_Inactive(t *testing.T) {
	text := RenderStatus(&ctlplane.GetStatusReply{Status: override.Status{
		CurrentError: "permission denied",
		RecordError:  "saved override record is corrupt",
		InFlight:     true,
	}})
	assert.Contains(t, text, "inactive")
	assert.Contains(t, text, "(off)")
	assert.Contains(t, text, "unreadable: permission denied")
	assert.Contains(t, text, "saved override record is corrupt")
	assert.Contains(t, text, "In flight")
}

func TestRunHistory(t *testing.T) {
	client := new(ctlplane.MockControlPlaneClient)
	client.On("GetHistory", 0).Return([]ctlplane.HistoryEntry{}, nil).Once()
	client.On("GetHistory", 5).Return([]ctlplane.HistoryEntry{
		{Time: time.Now(), OpID: "6f1c2a9e-0000-4000-8000-000000000000", Op: "apply", Trigger: "command", Outcome: "applied"},
		{Time: time.Now(), OpID: "7a2b3c4d-0000-4000-8000-000000000000", Op: "revert", Trigger: "sweep", Outcome: "restore_failed", Error: "disk full"},
	}, nil)

	var out bytes.Buffer
	require.NoError(t, RunHistory(client, 0, &out))
	assert.Equal(t, "no transitions recorded\n", out.String())

	out.Reset()
	require.NoError(t, RunHistory(client, 5, &out))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "TRIGGER")
	assert.Contains(t, string(lines[1]), "6f1c2a9e")
	assert.NotContains(t, string(lines[1]), "4000")
	assert.Contains(t, string(lines[2]), "disk full")
}

func TestRunAudit(t *testing.T) {
	client := new(ctlplane.MockControlPlaneClient)
	empty := &ctlplane.GetAuditArgs{Op: "apply"}
	client.On("GetAudit", empty).Return([]audit.Event{}, nil)
	args := &ctlplane.GetAuditArgs{Outcome: "restore_failed", Limit: 10}
	client.On("GetAudit", args).Return([]audit.Event{
		{Timestamp: time.Now(), OpID: "7a2b3c4d-0000-4000-8000-000000000000", Op: "revert", Trigger: "shutdown",
			Outcome: "restore_failed", Error: "read-only file system", Resource: "memory"},
	}, nil)

	var out bytes.Buffer
	require.NoError(t, RunAudit(client, empty, &out))
	assert.Equal(t, "no audit events\n", out.String())

	out.Reset()
	require.NoError(t, RunAudit(client, args, &out))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "RESOURCE")
	assert.Contains(t, string(lines[1]), "7a2b3c4d")
	assert.Contains(t, string(lines[1]), "shutdown")
	assert.Contains(t, string(lines[1]), "read-only file system")

	failing := new(ctlplane.MockControlPlaneClient)
	failing.On("GetAudit", args).Return(nil, errors.New("audit trail is not enabled"))
	assert.ErrorContains(t, RunAudit(failing, args, &out), "not enabled")
}

func TestRunLogs(t *testing.T) {
	client := new(ctlplane.MockControlPlaneClient)
	args := &ctlplane.GetLogsArgs{Source: "ctlplane", Limit: 2}
	client.On("GetLogs", args).Return([]logging.AppLogEntry{
		{Timestamp: time.Now(), Level: "info", Source: "ctlplane", Message: "change: applied"},
		{Timestamp: time.Now(), Level: "error", Source: "ctlplane", Message: "revert: restore_failed"},
	}, nil)

	var out bytes.Buffer
	require.NoError(t, RunLogs(client, args, &out))
	assert.Contains(t, out.String(), "[info ] ctlplane: change: applied")
	assert.Contains(t, out.String(), "[error] ctlplane: revert: restore_failed")
}

func TestRootCmd_DialsConfiguredSocket(t *testing.T) {
	client := new(ctlplane.MockControlPlaneClient)
	client.On("Change").Return(&ctlplane.CommandReply{Response: "OK", Outcome: override.OutcomeApplied}, nil)
	client.On("Close").Return(nil)

	var dialed string
	root := newRootCmd(func(path string) (ctlplane.ControlPlaneClient, error) {
		dialed = path
		return client, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--socket", "/tmp/holdover-test.sock", "change"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "/tmp/holdover-test.sock", dialed)
	assert.Equal(t, "{\"response\":\"OK\"}\n", out.String())
	client.AssertExpectations(t)
}

func TestRootCmd_DialFailure(t *testing.T) {
	root := newRootCmd(func(path string) (ctlplane.ControlPlaneClient, error) {
		return nil, errors.New("no such file or directory")
	})
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--socket", "/nonexistent.sock", "status"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is the daemon running?")
}

func TestRootCmd_ActivateNeedsURL(t *testing.T) {
	root := newRootCmd(func(path string) (ctlplane.ControlPlaneClient, error) {
		t.Fatal("should not dial")
		return nil, nil
	})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"activate"})
	assert.Error(t, root.Execute())
}
