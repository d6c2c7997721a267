package ctlplane

import (
	"github.com/stretchr/testify/mock"

	"grimm.is/holdover/internal/audit"
	"grimm.is/holdover/internal/logging"
)

// MockControlPlaneClient is a mock implementation of ControlPlaneClient for testing.
type MockControlPlaneClient struct {
	mock.Mock
}

var _ ControlPlaneClient = (*MockControlPlaneClient)(nil)

func (m *MockControlPlaneClient) Close() error {
	return m.Called().Error(0)
}

func (m *MockControlPlaneClient) Change() (*CommandReply, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CommandReply), args.Error(1)
}

func (m *MockControlPlaneClient) Revert() (*CommandReply, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CommandReply), args.Error(1)
}

func (m *MockControlPlaneClient) Activate(url string) (*ActivateReply, error) {
	args := m.Called(url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ActivateReply), args.Error(1)
}

func (m *MockControlPlaneClient) CheckTTL() (*CheckTTLReply, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CheckTTLReply), args.Error(1)
}

func (m *MockControlPlaneClient) GetStatus() (*GetStatusReply, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GetStatusReply), args.Error(1)
}

func (m *MockControlPlaneClient) GetHistory(limit int) ([]HistoryEntry, error) {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]HistoryEntry), args.Error(1)
}

func (m *MockControlPlaneClient) GetAudit(req *GetAuditArgs) ([]audit.Event, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Event), args.Error(1)
}

func (m *MockControlPlaneClient) GetLogs(req *GetLogsArgs) ([]logging.AppLogEntry, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]logging.AppLogEntry), args.Error(1)
}
