// Package events provides the pub/sub bus holdover uses to fan out override
// transitions and badge changes to the websocket API and the history journal.
package events

import "time"

// EventType identifies the category of event.
type EventType string

// Event types.
const (
	// Controller transitions (one per apply/revert/sweep outcome)
	EventTransition EventType = "override.transition"

	// Badge changed state ("ON" or "")
	EventBadge EventType = "override.badge"

	// Periodic TTL sweep ran
	EventSweep EventType = "override.sweep"

	// Config reloaded from disk
	EventConfigReload EventType = "config.reload"
)

// Event is the core message passed through the event bus.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"` // Component that emitted: "override", "badge", "scheduler"
	Data      interface{} `json:"data"`   // Type-specific payload
}

// ──────────────────────────────────────────────────────────────────────────────
// Type-Specific Payloads
// ──────────────────────────────────────────────────────────────────────────────

// TransitionData is the payload for EventTransition.
type TransitionData struct {
	OpID    string `json:"op_id"`
	Op      string `json:"op"`      // "apply", "revert"
	Trigger string `json:"trigger"` // "command", "activate", "sweep", "shutdown"
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`

	// Active is the override state the outcome leaves behind, nil when the
	// outcome says nothing about it (busy, failures).
	Active    *bool `json:"active,omitempty"`
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// BadgeData is the payload for EventBadge.
type BadgeData struct {
	Text string `json:"text"`
}

// SweepData is the payload for EventSweep.
type SweepData struct {
	Result    string `json:"result"` // "idle", "pending", "expired", "error"
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// ConfigReloadData is the payload for EventConfigReload.
type ConfigReloadData struct {
	Path     string `json:"path"`
	LogLevel string `json:"log_level"`
	Error    string `json:"error,omitempty"`
}
