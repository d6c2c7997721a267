// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"os"
	"testing"
)

// SystemTestEnv enables tests that change real host state.
const SystemTestEnv = "HOLDOVER_SYSTEM_TEST"

// RequireSystem skips the test unless HOLDOVER_SYSTEM_TEST is set and the
// process runs as root. Such tests write to /proc/sys and should only run in
// a throwaway VM or container.
func RequireSystem(t *testing.T) {
	t.Helper()
	if os.Getenv(SystemTestEnv) == "" {
		t.Skip("requires " + SystemTestEnv)
	}
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
}
