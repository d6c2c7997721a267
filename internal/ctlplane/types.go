package ctlplane

import (
	"time"

	"grimm.is/holdover/internal/audit"
	"grimm.is/holdover/internal/logging"
	"grimm.is/holdover/internal/override"
)

// Empty is used for methods with no arguments or no reply.
type Empty struct{}

// CommandReply answers Change and Revert. Response is always "OK"; Outcome
// and Error are extra detail for the CLI.
type CommandReply struct {
	Response string
	Outcome  override.Outcome
	Error    string
}

// ActivateArgs names the URL that triggered activation.
type ActivateArgs struct {
	URL string
}

// ActivateReply reports whether the URL was allowed and what Apply did.
type ActivateReply struct {
	Activation override.Activation
	Error      string
}

// GetStatusReply carries a controller snapshot.
type GetStatusReply struct {
	Status  override.Status
	Version string
	Uptime  time.Duration
}

// CheckTTLReply reports one manually triggered sweep.
type CheckTTLReply struct {
	Sweep override.Sweep
	Error string
}

// GetHistoryArgs limits the number of returned entries; zero means all held.
type GetHistoryArgs struct {
	Limit int
}

// HistoryEntry is a flattened transition event.
type HistoryEntry struct {
	Time    time.Time
	OpID    string
	Op      string
	Trigger string
	Outcome string
	Error   string
}

// GetHistoryReply lists transitions, newest last.
type GetHistoryReply struct {
	Entries []HistoryEntry
}

// GetLogsArgs filters the application log buffer.
type GetLogsArgs struct {
	Source string
	Limit  int
}

// GetLogsReply lists log entries, oldest first.
type GetLogsReply struct {
	Entries []logging.AppLogEntry
}

// GetAuditArgs filters the durable audit trail.
type GetAuditArgs struct {
	Op      string
	Outcome string
	Since   time.Time
	Limit   int
}

// GetAuditReply lists audit events, newest first.
type GetAuditReply struct {
	Events []audit.Event
}
