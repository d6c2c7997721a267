// Package brand provides centralized naming and filesystem defaults for holdover.
//
// Directories can be relocated at runtime with HOLDOVER_PREFIX or the more
// specific HOLDOVER_*_DIR environment variables.
package brand

import (
	"os"
	"path/filepath"
)

const (
	Name        = "Holdover"
	BinaryName  = "holdover"
	Description = "Temporary network privacy policy override with guaranteed revert"

	// EnvPrefix prefixes every environment variable holdover reads.
	EnvPrefix = "HOLDOVER"

	DefaultConfigDir = "/etc/holdover"
	DefaultStateDir  = "/var/lib/holdover"
	DefaultRunDir    = "/run/holdover"

	ConfigFileName = "holdover.hcl"
	StateFileName  = "state.db"
	SocketName     = "ctl.sock"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

type dir struct {
	env    string // HOLDOVER_<env>
	prefix string // subdirectory under HOLDOVER_PREFIX
	def    string
}

var (
	configDir = dir{"CONFIG_DIR", "config", DefaultConfigDir}
	stateDir  = dir{"STATE_DIR", "state", DefaultStateDir}
	runDir    = dir{"RUN_DIR", "run", DefaultRunDir}
)

// resolve prefers HOLDOVER_<env>, then HOLDOVER_PREFIX/<prefix>, then the default.
func (d dir) resolve() string {
	if v := os.Getenv(EnvPrefix + "_" + d.env); v != "" {
		return v
	}
	if p := os.Getenv(EnvPrefix + "_PREFIX"); p != "" {
		return filepath.Join(p, d.prefix)
	}
	return d.def
}

func GetConfigDir() string { return configDir.resolve() }
func GetStateDir() string  { return stateDir.resolve() }
func GetRunDir() string    { return runDir.resolve() }

// GetConfigPath returns the default configuration file path.
func GetConfigPath() string { return filepath.Join(GetConfigDir(), ConfigFileName) }

// GetStatePath returns the default state database path.
func GetStatePath() string { return filepath.Join(GetStateDir(), StateFileName) }

// GetSocketPath returns the default control socket path.
func GetSocketPath() string { return filepath.Join(GetRunDir(), SocketName) }
