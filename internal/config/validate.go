package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"grimm.is/holdover/internal/logging"
	"grimm.is/holdover/internal/policy"
	"grimm.is/holdover/internal/state"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

func (e *ValidationErrors) add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks a defaulted config. The sweep must run at least once per
// TTL, otherwise an expired override could outlive its TTL by more than one
// sweep period.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(c.OverrideMode) == "" {
		errs.add("override_mode", "must not be empty")
	}

	ttl, ttlErr := time.ParseDuration(c.TTL)
	switch {
	case ttlErr != nil:
		errs.add("ttl", "invalid duration %q", c.TTL)
	case ttl < time.Second:
		errs.add("ttl", "must be at least 1s, got %s", ttl)
	}

	sweep, sweepErr := time.ParseDuration(c.SweepInterval)
	switch {
	case sweepErr != nil:
		errs.add("sweep_interval", "invalid duration %q", c.SweepInterval)
	case sweep <= 0:
		errs.add("sweep_interval", "must be positive, got %s", sweep)
	case ttlErr == nil && sweep > ttl:
		errs.add("sweep_interval", "%s exceeds ttl %s", sweep, ttl)
	}

	if c.Log != nil {
		if _, err := logging.ParseLevel(c.Log.Level); err != nil {
			errs.add("log.level", "%v", err)
		}
	}

	if c.Store != nil {
		switch c.Store.Backend {
		case state.BackendSQLite, state.BackendBadger:
			if c.Store.Path == "" {
				errs.add("store.path", "required for %s backend", c.Store.Backend)
			}
		case state.BackendMemory:
		default:
			errs.add("store.backend", "unknown backend %q (want sqlite, badger or memory)", c.Store.Backend)
		}
		if d, err := time.ParseDuration(c.Store.MaintenanceInterval); err != nil || d <= 0 {
			errs.add("store.maintenance_interval", "invalid duration %q", c.Store.MaintenanceInterval)
		}
	}

	if c.Resource != nil {
		switch c.Resource.Kind {
		case policy.KindChromePolicy, policy.KindMemory:
		case policy.KindSysctl:
			if c.Resource.Path == "" {
				errs.add("resource.sysctl.path", "required")
			}
		default:
			errs.add("resource", "unknown kind %q (want chrome_policy, sysctl or memory)", c.Resource.Kind)
		}
	}

	if c.API != nil {
		if _, err := regexp.Compile(c.API.AllowPattern); err != nil {
			errs.add("api.allow_pattern", "%v", err)
		}
		if c.APIEnabled() {
			if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
				errs.add("api.listen", "%v", err)
			}
		}
		if c.API.RateLimit < 0 {
			errs.add("api.rate_limit", "must not be negative")
		}
		if c.API.RateBurst < 0 {
			errs.add("api.rate_burst", "must not be negative")
		}
	}

	if c.Control != nil && c.Control.Socket == "" {
		errs.add("control.socket", "must not be empty")
	}

	if c.AuditEnabled() {
		if c.Audit.Path == "" {
			errs.add("audit.path", "must not be empty")
		}
		if d, err := time.ParseDuration(c.Audit.Retention); err != nil || d <= 0 {
			errs.add("audit.retention", "invalid duration %q", c.Audit.Retention)
		}
	}

	return errs
}
