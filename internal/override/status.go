package override

import (
	"context"
	"time"

	"grimm.is/holdover/internal/clock"
)

// badgeReader is implemented by indicators that can report their text.
type badgeReader interface {
	Text() string
}

// Status is a read-only snapshot of the override.
type Status struct {
	Resource     string         `json:"resource"`
	Current      string         `json:"current"`
	CurrentError string         `json:"current_error,omitempty"`
	Mode         string         `json:"mode"`
	Active       bool           `json:"active"`
	Record       *SavedOverride `json:"record,omitempty"`
	RecordError  string         `json:"record_error,omitempty"`
	Remaining    time.Duration  `json:"remaining,omitempty"`
	Badge        string         `json:"badge"`
	InFlight     bool           `json:"in_flight"`
	TTL          time.Duration  `json:"ttl"`
}

// Status reports the current policy value and saved record without taking
// the transition guard. Read errors are reported in the snapshot.
func (c *Controller) Status(ctx context.Context) Status {
	st := Status{
		Resource: c.resource.Describe(),
		Mode:     c.mode,
		InFlight: c.inFlight.Load(),
		TTL:      c.ttl,
	}

	if current, err := c.resource.Get(ctx); err != nil {
		st.CurrentError = err.Error()
	} else {
		st.Current = current
		st.Active = current == c.mode
	}

	if rec, err := c.store.Load(ctx); err != nil {
		st.RecordError = err.Error()
	} else if rec != nil {
		st.Record = rec
		st.Remaining = rec.Remaining(clock.EpochSeconds(c.clock))
	}

	if br, ok := c.badge.(badgeReader); ok {
		st.Badge = br.Text()
	}
	return st
}
