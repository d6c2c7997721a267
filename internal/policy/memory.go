package policy

import (
	"context"
	"sync"
)

// Memory is a process-local Resource.
type Memory struct {
	mu    sync.Mutex
	value string
}

// NewMemory returns a Memory resource holding initial.
func NewMemory(initial string) *Memory {
	return &Memory{value: initial}
}

func (m *Memory) Describe() string { return "memory" }

func (m *Memory) Get(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, nil
}

func (m *Memory) Set(ctx context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = value
	return nil
}
