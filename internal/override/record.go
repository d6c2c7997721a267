package override

import (
	"time"

	"grimm.is/holdover/internal/clock"
)

// SavedOverride is the persisted memory of an active override: the value to
// restore and the absolute time by which to restore it.
type SavedOverride struct {
	PriorPolicy string `json:"prior_policy"`
	ExpiresAt   int64  `json:"expires_at"` // epoch seconds
}

// IsExpired reports whether the record's TTL has run out at now (epoch seconds).
// The expiry second itself counts as expired.
func (r *SavedOverride) IsExpired(now int64) bool {
	return now >= r.ExpiresAt
}

// Expiry returns ExpiresAt as a time.
func (r *SavedOverride) Expiry() time.Time {
	return clock.FromEpochSeconds(r.ExpiresAt)
}

// Remaining returns how long until expiry at now (epoch seconds), or zero once expired.
func (r *SavedOverride) Remaining(now int64) time.Duration {
	if r.IsExpired(now) {
		return 0
	}
	return time.Duration(r.ExpiresAt-now) * time.Second
}
