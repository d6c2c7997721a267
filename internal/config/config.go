package config

import (
	"path/filepath"
	"reflect"
	"time"

	"grimm.is/holdover/internal/brand"
	"grimm.is/holdover/internal/policy"
	"grimm.is/holdover/internal/state"
)

// CurrentSchemaVersion defines the current schema version of the configuration.
const CurrentSchemaVersion = "1.0"

// Defaults for settings the file leaves out.
const (
	DefaultTTL                 = "5m"
	DefaultSweepInterval       = "1m"
	DefaultMaintenanceInterval = "1h"
	DefaultLogLevel            = "info"
	DefaultListen              = "127.0.0.1:8787"
	DefaultRateLimit           = 10.0
	DefaultRateBurst           = 20
	DefaultAuditRetention      = "2160h"

	// DefaultAllowPattern matches the sites the override was built for.
	DefaultAllowPattern = `^https?://[^/]*\.?smalruby\.(jp|app)(:[0-9]+)?/`
)

// Config is the top-level structure for the holdover configuration.
type Config struct {
	// Schema version for backward compatibility (e.g., "1.0")
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	// Value forced while the override is active.
	OverrideMode string `hcl:"override_mode,optional" json:"override_mode"`

	// Durations as Go duration strings ("5m", "90s").
	TTL           string `hcl:"ttl,optional" json:"ttl"`
	SweepInterval string `hcl:"sweep_interval,optional" json:"sweep_interval"`

	// Revert the override when the daemon receives SIGINT or SIGTERM.
	RevertOnShutdown *bool `hcl:"revert_on_shutdown,optional" json:"revert_on_shutdown,omitempty"`

	// Log writes instead of performing them.
	DryRun bool `hcl:"dry_run,optional" json:"dry_run"`

	Log      *LogConfig      `hcl:"log,block" json:"log,omitempty"`
	Store    *StoreConfig    `hcl:"store,block" json:"store,omitempty"`
	Resource *ResourceConfig `hcl:"resource,block" json:"resource,omitempty"`
	API      *APIConfig      `hcl:"api,block" json:"api,omitempty"`
	Control  *ControlConfig  `hcl:"control,block" json:"control,omitempty"`
	Audit    *AuditConfig    `hcl:"audit,block" json:"audit,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `hcl:"level,optional" json:"level"`
	JSON  bool   `hcl:"json,optional" json:"json"`
}

// StoreConfig selects the state backend.
type StoreConfig struct {
	Backend string `hcl:"backend,optional" json:"backend"`
	Path    string `hcl:"path,optional" json:"path"`

	// How often the store compacts itself.
	MaintenanceInterval string `hcl:"maintenance_interval,optional" json:"maintenance_interval"`
}

// ResourceConfig selects the policy being overridden.
type ResourceConfig struct {
	Kind string `hcl:"kind,label" json:"kind"`
	Path string `hcl:"path,optional" json:"path,omitempty"`
	Key  string `hcl:"key,optional" json:"key,omitempty"`

	// Starting value for the memory kind.
	Initial string `hcl:"initial,optional" json:"initial,omitempty"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Enabled      *bool   `hcl:"enabled,optional" json:"enabled,omitempty"`
	Listen       string  `hcl:"listen,optional" json:"listen"`
	AllowPattern string  `hcl:"allow_pattern,optional" json:"allow_pattern"`
	RateLimit    float64 `hcl:"rate_limit,optional" json:"rate_limit"` // requests per second per client
	RateBurst    int     `hcl:"rate_burst,optional" json:"rate_burst"`
}

// ControlConfig configures the control-plane socket.
type ControlConfig struct {
	Socket string `hcl:"socket,optional" json:"socket"`
}

// AuditConfig configures the durable transition trail.
type AuditConfig struct {
	Enabled   *bool  `hcl:"enabled,optional" json:"enabled,omitempty"`
	Path      string `hcl:"path,optional" json:"path"`
	Retention string `hcl:"retention,optional" json:"retention"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in every unset field.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.OverrideMode == "" {
		c.OverrideMode = policy.DefaultMode
	}
	if c.TTL == "" {
		c.TTL = DefaultTTL
	}
	if c.SweepInterval == "" {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.RevertOnShutdown == nil {
		enabled := true
		c.RevertOnShutdown = &enabled
	}

	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Store.Backend == "" {
		c.Store.Backend = state.BackendSQLite
	}
	if c.Store.Path == "" {
		c.Store.Path = brand.GetStatePath()
	}
	if c.Store.MaintenanceInterval == "" {
		c.Store.MaintenanceInterval = DefaultMaintenanceInterval
	}

	if c.Resource == nil {
		c.Resource = &ResourceConfig{Kind: policy.KindChromePolicy}
	}
	if c.Resource.Kind == policy.KindChromePolicy {
		if c.Resource.Path == "" {
			c.Resource.Path = policy.DefaultChromePolicyPath
		}
		if c.Resource.Key == "" {
			c.Resource.Key = policy.DefaultChromePolicyKey
		}
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Enabled == nil {
		enabled := true
		c.API.Enabled = &enabled
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListen
	}
	if c.API.AllowPattern == "" {
		c.API.AllowPattern = DefaultAllowPattern
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = DefaultRateLimit
	}
	if c.API.RateBurst == 0 {
		c.API.RateBurst = DefaultRateBurst
	}

	if c.Control == nil {
		c.Control = &ControlConfig{}
	}
	if c.Control.Socket == "" {
		c.Control.Socket = brand.GetSocketPath()
	}

	if c.Audit == nil {
		c.Audit = &AuditConfig{}
	}
	if c.Audit.Enabled == nil {
		enabled := true
		c.Audit.Enabled = &enabled
	}
	if c.Audit.Path == "" {
		c.Audit.Path = filepath.Join(brand.GetStateDir(), "audit.db")
	}
	if c.Audit.Retention == "" {
		c.Audit.Retention = DefaultAuditRetention
	}
}

// TTLDuration returns the parsed TTL. Call after Validate.
func (c *Config) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}

// SweepDuration returns the parsed sweep interval. Call after Validate.
func (c *Config) SweepDuration() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

// MaintenanceDuration returns the parsed store maintenance interval. Call after Validate.
func (c *Config) MaintenanceDuration() time.Duration {
	d, _ := time.ParseDuration(c.Store.MaintenanceInterval)
	return d
}

// AuditEnabled reports whether transitions are written to the audit trail.
func (c *Config) AuditEnabled() bool {
	return c.Audit != nil && (c.Audit.Enabled == nil || *c.Audit.Enabled)
}

// AuditRetention returns the parsed audit retention. Call after Validate.
func (c *Config) AuditRetention() time.Duration {
	d, _ := time.ParseDuration(c.Audit.Retention)
	return d
}

// ShouldRevertOnShutdown reports whether shutdown reverts the override.
func (c *Config) ShouldRevertOnShutdown() bool {
	return c.RevertOnShutdown == nil || *c.RevertOnShutdown
}

// APIEnabled reports whether the HTTP API should be served.
func (c *Config) APIEnabled() bool {
	return c.API != nil && (c.API.Enabled == nil || *c.API.Enabled)
}

// PolicySpec converts the resource block for policy.New.
func (c *Config) PolicySpec() policy.Spec {
	return policy.Spec{
		Kind:    c.Resource.Kind,
		Path:    c.Resource.Path,
		Key:     c.Resource.Key,
		Initial: c.Resource.Initial,
		DryRun:  c.DryRun,
	}
}

// RestartFields lists the settings that differ between old and next and only
// take effect after a restart. The log block is applied live and not listed.
func RestartFields(old, next *Config) []string {
	var changed []string
	diff := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			changed = append(changed, name)
		}
	}
	diff("override_mode", old.OverrideMode, next.OverrideMode)
	diff("ttl", old.TTL, next.TTL)
	diff("sweep_interval", old.SweepInterval, next.SweepInterval)
	diff("revert_on_shutdown", old.ShouldRevertOnShutdown(), next.ShouldRevertOnShutdown())
	diff("dry_run", old.DryRun, next.DryRun)
	diff("store", old.Store, next.Store)
	diff("resource", old.Resource, next.Resource)
	diff("api", old.API, next.API)
	diff("control", old.Control, next.Control)
	diff("audit", old.Audit, next.Audit)
	return changed
}
