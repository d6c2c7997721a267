package scheduler

import "time"

// Interval fires every fixed duration after the previous slot.
type Interval time.Duration

// Every returns a Schedule that fires every d.
func Every(d time.Duration) Interval {
	return Interval(d)
}

func (i Interval) Next(after time.Time) time.Time {
	return after.Add(time.Duration(i))
}
