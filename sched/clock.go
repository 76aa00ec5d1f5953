package sched

import "time"

// ManualClock is a Clock advanced explicitly. It lets tests and the mock
// adapter step driver protocols through their deferred callbacks without
// sleeping.
type ManualClock struct {
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time { return c.now }

// Advance moves the clock forward and returns the new instant.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func (c *ManualClock) Set(t time.Time) { c.now = t }
