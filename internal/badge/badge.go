// Package badge holds the two-state indicator that tells users whether the
// policy override is currently applied.
package badge

import (
	"sync"

	"grimm.is/holdover/internal/events"
)

// Badge texts.
const (
	On  = "ON"
	Off = ""
)

// Badge is a text indicator. Every Set is published on the event hub so
// connected clients see it even when the text did not change.
type Badge struct {
	mu   sync.RWMutex
	text string
	hub  *events.Hub
}

// New returns a cleared badge. hub may be nil.
func New(hub *events.Hub) *Badge {
	return &Badge{hub: hub}
}

// Set updates the badge text.
func (b *Badge) Set(text string) {
	b.mu.Lock()
	b.text = text
	b.mu.Unlock()

	b.hub.EmitBadge(text)
}

// Text returns the current badge text.
func (b *Badge) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// IsOn reports whether the badge shows the override as applied.
func (b *Badge) IsOn() bool {
	return b.Text() == On
}
