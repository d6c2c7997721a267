package state

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"grimm.is/holdover/internal/clock"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Open creates the Store selected by backend.
// For sqlite path is the database file, for badger it is a directory.
// The memory backend ignores path and keeps nothing across restarts.
func Open(backend, path string, logger *slog.Logger, clk clock.Clock) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
		opts := DefaultOptions(path)
		opts.Clock = clk
		return NewSQLiteStore(opts)
	case BackendBadger:
		opts := DefaultBadgerOptions(path)
		opts.Logger = logger
		return NewBadgerStore(opts)
	case BackendMemory:
		opts := DefaultOptions(":memory:")
		opts.Clock = clk
		return NewSQLiteStore(opts)
	}
	return nil, fmt.Errorf("unknown state backend %q", backend)
}
