// Package clock abstracts the time source so TTL arithmetic can be tested
// without sleeping.
//
// Override expiry is persisted as whole epoch seconds, so the package also
// converts between time.Time and that representation through a Clock.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// Real is the wall clock.
var Real Clock = realClock{}

type realClock struct{}

func (realClock) Now() time.Time                  { return time.Now() }
func (realClock) Since(t time.Time) time.Duration { return time.Since(t) }

// OrReal returns c, or the wall clock when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real
	}
	return c
}

// Now is the wall-clock time. It is for code with no Clock to hand, such as
// log timestamps.
func Now() time.Time { return time.Now() }

// MockClock only moves when told to. It is safe for concurrent use.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock returns a MockClock reading t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Set jumps to t, which may be in the past.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// EpochSeconds is c's current time in whole seconds since the Unix epoch.
func EpochSeconds(c Clock) int64 {
	return OrReal(c).Now().Unix()
}

// FromEpochSeconds converts whole epoch seconds back to a UTC time.
func FromEpochSeconds(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
