package ctlplane

import (
	"grimm.is/holdover/internal/audit"
	"grimm.is/holdover/internal/logging"
)

// ControlPlaneClient defines the interface for communicating with the control plane.
// This interface enables mocking in unit tests.
type ControlPlaneClient interface {
	Close() error

	Change() (*CommandReply, error)
	Revert() (*CommandReply, error)
	Activate(url string) (*ActivateReply, error)
	CheckTTL() (*CheckTTLReply, error)

	GetStatus() (*GetStatusReply, error)
	GetHistory(limit int) ([]HistoryEntry, error)
	GetAudit(args *GetAuditArgs) ([]audit.Event, error)
	GetLogs(args *GetLogsArgs) ([]logging.AppLogEntry, error)
}
