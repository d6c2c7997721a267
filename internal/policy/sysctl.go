package policy

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SysctlIO reads and writes kernel parameters.
type SysctlIO interface {
	ReadSysctl(path string) (string, error)
	WriteSysctl(path, value string) error
}

// ProcSysctl is the SysctlIO backed by /proc/sys.
type ProcSysctl struct{}

// sysctlPath converts dotted notation (net.ipv6.conf.all.use_tempaddr) to a
// /proc/sys path. Absolute paths pass through.
func sysctlPath(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/proc/sys/" + strings.ReplaceAll(path, ".", "/")
}

// ReadSysctl reads a sysctl value from the specified path.
func (ProcSysctl) ReadSysctl(path string) (string, error) {
	data, err := os.ReadFile(sysctlPath(path))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteSysctl writes a sysctl value to the specified path.
func (ProcSysctl) WriteSysctl(path, value string) error {
	return os.WriteFile(sysctlPath(path), []byte(value), 0644)
}

// Sysctl exposes one kernel parameter as a policy resource.
type Sysctl struct {
	path string
	io   SysctlIO
}

// NewSysctl returns a resource for the parameter at path. A nil io uses /proc/sys.
func NewSysctl(path string, io SysctlIO) *Sysctl {
	if io == nil {
		io = ProcSysctl{}
	}
	return &Sysctl{path: path, io: io}
}

func (s *Sysctl) Describe() string {
	return "sysctl " + s.path
}

func (s *Sysctl) Get(ctx context.Context) (string, error) {
	v, err := s.io.ReadSysctl(s.path)
	if err != nil {
		return "", fmt.Errorf("read sysctl %s: %w", s.path, err)
	}
	return v, nil
}

func (s *Sysctl) Set(ctx context.Context, value string) error {
	if err := s.io.WriteSysctl(s.path, value); err != nil {
		return fmt.Errorf("write sysctl %s: %w", s.path, err)
	}
	return nil
}
