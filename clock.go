package voxelmarch

import (
	"time"
)

// Clock tracks the elapsed time since start and the delta of the last tick.
type Clock struct {
	Start time.Time
	Time  time.Time
	Dt    time.Duration

	now func() time.Time
}

func NewClock() *Clock {
	return newClockWith(time.Now)
}

func newClockWith(now func() time.Time) *Clock {
	t := now()
	return &Clock{Start: t, Time: t, now: now}
}

func (c *Clock) Tick() {
	now := c.now()
	c.Dt = now.Sub(c.Time)
	c.Time = now
}

// Elapsed is the time since start in seconds, as fed to the lighting and filter passes.
func (c *Clock) Elapsed() float32 {
	return float32(c.Time.Sub(c.Start).Seconds())
}

func (c *Clock) DtSeconds() float32 {
	return float32(c.Dt.Seconds())
}
