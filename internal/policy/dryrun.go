package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DryRun wraps a Resource so that reads see the real value until the first
// write, and writes are only logged and remembered.
type DryRun struct {
	inner  Resource
	logger *slog.Logger

	mu      sync.Mutex
	written bool
	value   string
	Writes  []string
}

// NewDryRun wraps inner. A nil logger uses slog.Default.
func NewDryRun(inner Resource, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{inner: inner, logger: logger}
}

func (d *DryRun) Describe() string {
	return "dry-run " + d.inner.Describe()
}

func (d *DryRun) Get(ctx context.Context) (string, error) {
	d.mu.Lock()
	if d.written {
		v := d.value
		d.mu.Unlock()
		return v, nil
	}
	d.mu.Unlock()
	return d.inner.Get(ctx)
}

func (d *DryRun) Set(ctx context.Context, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = true
	d.value = value
	d.Writes = append(d.Writes, fmt.Sprintf("set %s=%s", d.inner.Describe(), value))
	d.logger.Info("dry-run: policy write suppressed", "resource", d.inner.Describe(), "value", value)
	return nil
}
