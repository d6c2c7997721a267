package policy

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockResource is a mock implementation of the Resource interface.
type MockResource struct {
	mock.Mock
}

func (m *MockResource) Get(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockResource) Set(ctx context.Context, value string) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockResource) Describe() string {
	return "mock"
}

// MockSysctlIO is a mock implementation of the SysctlIO interface.
type MockSysctlIO struct {
	mock.Mock
}

func (m *MockSysctlIO) ReadSysctl(path string) (string, error) {
	args := m.Called(path)
	return args.String(0), args.Error(1)
}

func (m *MockSysctlIO) WriteSysctl(path, value string) error {
	args := m.Called(path, value)
	return args.Error(0)
}
