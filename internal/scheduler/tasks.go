package scheduler

import (
	"context"
	"time"
)

// Well-known task IDs.
const (
	TaskTTLSweep         = "ttl-sweep"
	TaskStoreMaintenance = "store-maintenance"
	TaskAuditPrune       = "audit-prune"
)

// NewTTLSweepTask creates the periodic override expiry check. It runs once as
// soon as the scheduler starts and then every interval, so an override left
// behind by a previous process is handled at startup.
func NewTTLSweepTask(sweep TaskFunc, interval time.Duration) *Task {
	return &Task{
		ID:          TaskTTLSweep,
		Name:        "TTL Sweep",
		Description: "Revert the policy override once its TTL has passed",
		Schedule:    Every(interval),
		Enabled:     true,
		RunOnStart:  true,
		Func:        sweep,
	}
}

// NewStoreMaintenanceTask creates a task that compacts the state store.
func NewStoreMaintenanceTask(maintain TaskFunc, interval time.Duration) *Task {
	return &Task{
		ID:          TaskStoreMaintenance,
		Name:        "Store Maintenance",
		Description: "Reclaim space in the state store",
		Schedule:    Every(interval),
		Enabled:     true,
		RunOnStart:  false,
		Timeout:     5 * time.Minute,
		Func:        maintain,
	}
}

// NewAuditPruneTask creates the daily cleanup of expired audit events.
func NewAuditPruneTask(prune TaskFunc) *Task {
	return &Task{
		ID:          TaskAuditPrune,
		Name:        "Audit Prune",
		Description: "Drop audit events older than the retention period",
		Schedule:    Every(24 * time.Hour),
		Enabled:     true,
		RunOnStart:  true,
		Timeout:     time.Minute,
		Func:        prune,
	}
}
