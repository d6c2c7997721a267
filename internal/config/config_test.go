package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/holdover/internal/policy"
	"grimm.is/holdover/internal/state"
)

func TestLoadHCL_Defaults(t *testing.T) {
	cfg, err := LoadHCL([]byte(""), "empty.hcl")
	require.NoError(t, err)

	assert.Equal(t, CurrentSchemaVersion, cfg.SchemaVersion)
	assert.Equal(t, policy.DefaultMode, cfg.OverrideMode)
	assert.Equal(t, 5*time.Minute, cfg.TTLDuration())
	assert.Equal(t, time.Minute, cfg.SweepDuration())
	assert.Equal(t, time.Hour, cfg.MaintenanceDuration())
	assert.True(t, cfg.ShouldRevertOnShutdown())
	assert.True(t, cfg.APIEnabled())
	assert.Equal(t, state.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, policy.KindChromePolicy, cfg.Resource.Kind)
	assert.Equal(t, policy.DefaultChromePolicyPath, cfg.Resource.Path)
	assert.Equal(t, policy.DefaultChromePolicyKey, cfg.Resource.Key)
	assert.Equal(t, DefaultListen, cfg.API.Listen)
	assert.NotEmpty(t, cfg.Control.Socket)
	assert.True(t, cfg.AuditEnabled())
	assert.Equal(t, "audit.db", filepath.Base(cfg.Audit.Path))
	assert.Equal(t, 90*24*time.Hour, cfg.AuditRetention())
}

func TestLoadHCL_Full(t *testing.T) {
	src := `
schema_version     = "1.0"
override_mode      = "disable_non_proxied_udp"
ttl                = "10m"
sweep_interval     = "30s"
revert_on_shutdown = false
dry_run            = true

log {
  level = "debug"
  json  = true
}

store {
  backend = "badger"
  path    = "/var/lib/holdover/badger"
}

resource "sysctl" {
  path = "net.ipv4.ip_forward"
}

api {
  enabled    = false
  rate_limit = 2.5
  rate_burst = 4
}

control {
  socket = "/tmp/holdover.sock"
}

audit {
  enabled   = false
  retention = "720h"
}
`
	cfg, err := LoadHCL([]byte(src), "full.hcl")
	require.NoError(t, err)

	assert.Equal(t, "disable_non_proxied_udp", cfg.OverrideMode)
	assert.Equal(t, 10*time.Minute, cfg.TTLDuration())
	assert.Equal(t, 30*time.Second, cfg.SweepDuration())
	assert.False(t, cfg.ShouldRevertOnShutdown())
	assert.False(t, cfg.APIEnabled())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, state.BackendBadger, cfg.Store.Backend)
	assert.Equal(t, 2.5, cfg.API.RateLimit)
	assert.Equal(t, 4, cfg.API.RateBurst)
	assert.Equal(t, "/tmp/holdover.sock", cfg.Control.Socket)
	assert.False(t, cfg.AuditEnabled())
	assert.Equal(t, 30*24*time.Hour, cfg.AuditRetention())

	spec := cfg.PolicySpec()
	assert.Equal(t, policy.KindSysctl, spec.Kind)
	assert.Equal(t, "net.ipv4.ip_forward", spec.Path)
	assert.True(t, spec.DryRun)
}

func TestLoadHCL_EnvInterpolation(t *testing.T) {
	t.Setenv("HOLDOVER_TEST_STATE", "/srv/holdover")

	src := `
store {
  path = "${env.HOLDOVER_TEST_STATE}/state.db"
}
`
	cfg, err := LoadHCL([]byte(src), "env.hcl")
	require.NoError(t, err)
	assert.Equal(t, "/srv/holdover/state.db", cfg.Store.Path)
}

func TestLoadHCL_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"syntax", `ttl = `, "parse error"},
		{"unknown attribute", `bogus = 1`, "decode error"},
		{"bad version", `schema_version = "one"`, "invalid schema version"},
		{"unsupported version", `schema_version = "2.0"`, "unsupported config schema version"},
		{"ttl too short", `ttl = "500ms"`, "ttl: must be at least 1s"},
		{"sweep exceeds ttl", "ttl = \"1m\"\nsweep_interval = \"2m\"", "sweep_interval: 2m0s exceeds ttl"},
		{"bad duration", `sweep_interval = "soon"`, "invalid duration"},
		{"bad level", "log {\n level = \"loud\"\n}", "log.level"},
		{"unknown backend", "store {\n backend = \"etcd\"\n}", "store.backend"},
		{"unknown resource", "resource \"registry\" {\n}", "unknown kind"},
		{"sysctl without path", "resource \"sysctl\" {\n}", "resource.sysctl.path"},
		{"bad pattern", "api {\n allow_pattern = \"(\"\n}", "api.allow_pattern"},
		{"bad listen", "api {\n listen = \"8787\"\n}", "api.listen"},
		{"negative burst", "api {\n rate_burst = -1\n}", "api.rate_burst"},
		{"bad retention", "audit {\n retention = \"forever\"\n}", "audit.retention"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadHCL([]byte(tt.src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	cfg := Default()
	cfg.OverrideMode = " "
	cfg.TTL = "x"
	cfg.Control.Socket = ""

	errs := cfg.Validate()
	require.True(t, errs.HasErrors())

	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"override_mode", "ttl", "control.socket"}, fields)
	assert.Equal(t, ValidationErrors(nil).Error(), "")
}

func TestVersion(t *testing.T) {
	v, err := ParseVersion("")
	require.NoError(t, err)
	assert.Equal(t, "1.0", v.String())

	v, err = ParseVersion("1.3")
	require.NoError(t, err)
	assert.True(t, IsSupportedVersion(v))
	assert.Equal(t, 1, v.Compare(SchemaVersion{Major: 1, Minor: 0}))

	_, err = ParseVersion("1")
	assert.Error(t, err)
	assert.False(t, IsSupportedVersion(SchemaVersion{Major: 2}))
}

func TestGenerateHCL_RoundTrip(t *testing.T) {
	orig := Default()
	orig.OverrideMode = "disable_non_proxied_udp"
	orig.TTL = "2m"
	orig.SweepInterval = "15s"
	orig.DryRun = true
	orig.Store.Backend = state.BackendMemory
	orig.Resource = &ResourceConfig{Kind: policy.KindMemory, Initial: "default"}
	orig.API.RateLimit = 1.5

	out := GenerateHCL(orig)
	assert.Contains(t, string(out), `resource "memory"`)

	back, err := LoadHCL(out, "generated.hcl")
	require.NoError(t, err)
	assert.Equal(t, orig, back)
}

func TestFormatHCL(t *testing.T) {
	out, err := FormatHCL([]byte("ttl=\"5m\"\nsweep_interval=\"1m\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "ttl            = \"5m\"\nsweep_interval = \"1m\"\n", string(out))

	_, err = FormatHCL([]byte("ttl = {"))
	assert.Error(t, err)
}

func TestSaveHCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "holdover.hcl")

	cfg := Default()
	require.NoError(t, SaveHCL(cfg, path))
	_, err := os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(err), "first save must not leave a backup")

	cfg.TTL = "7m"
	require.NoError(t, SaveHCL(cfg, path))

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Contains(t, string(backup), `"5m"`)

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "7m", loaded.TTL)
}

func TestLoadFileOrDefault(t *testing.T) {
	cfg, err := LoadFileOrDefault(filepath.Join(t.TempDir(), "missing.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to read config file"))
}

func TestRestartFields(t *testing.T) {
	old := Default()
	next := Default()
	assert.Empty(t, RestartFields(old, next))

	next.Log.Level = "debug"
	assert.Empty(t, RestartFields(old, next), "log level applies live")

	next.TTL = "10m"
	next.Resource = &ResourceConfig{Kind: policy.KindSysctl, Path: "net.ipv6.conf.all.use_tempaddr"}
	assert.Equal(t, []string{"ttl", "resource"}, RestartFields(old, next))
}
