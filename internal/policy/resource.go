// Package policy abstracts the external setting that holdover overrides.
//
// A Resource is a mutable singleton owned by something outside this process:
// a managed browser policy file, a kernel knob, or (in tests) plain memory.
// The override controller only ever reads it and writes it whole.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultMode is the value holdover forces while an override is active.
const DefaultMode = "default"

// Resource kinds accepted by New.
const (
	KindChromePolicy = "chrome_policy"
	KindSysctl       = "sysctl"
	KindMemory       = "memory"
)

// ErrUnknownKind is returned by New for an unrecognised resource kind.
var ErrUnknownKind = errors.New("unknown policy resource kind")

// Resource is an external policy value with get/set access.
type Resource interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, value string) error
	// Describe names the resource for logs and status output.
	Describe() string
}

// Spec selects and configures a Resource.
type Spec struct {
	Kind    string
	Path    string
	Key     string
	Initial string
	DryRun  bool
}

// New builds the Resource described by spec.
func New(spec Spec, logger *slog.Logger) (Resource, error) {
	var r Resource
	switch spec.Kind {
	case KindChromePolicy:
		r = NewChromePolicy(spec.Path, spec.Key)
	case KindSysctl:
		if spec.Path == "" {
			return nil, fmt.Errorf("sysctl resource requires a path")
		}
		r = NewSysctl(spec.Path, nil)
	case KindMemory:
		initial := spec.Initial
		if initial == "" {
			initial = DefaultMode
		}
		r = NewMemory(initial)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}

	if spec.DryRun {
		r = NewDryRun(r, logger)
	}
	return r, nil
}
