package sequencer

import (
	"sync/atomic"
	"time"
)

// Clock paces the sequencer
type Clock interface {
	Sleep(d time.Duration)
}

// RealClock sleeps on the wall clock
type RealClock struct{}

// Sleep blocks for d
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// VirtualClock advances instantly. OnSleep, if set, runs after every advance
// with the new virtual time; tests use it to flip intents at given instants.
type VirtualClock struct {
	now     atomic.Int64
	sleeps  atomic.Int64
	OnSleep func(now time.Duration)
}

// Sleep advances the virtual time by d
func (c *VirtualClock) Sleep(d time.Duration) {
	now := c.now.Add(int64(d))
	c.sleeps.Add(1)
	if c.OnSleep != nil {
		c.OnSleep(time.Duration(now))
	}
}

// Now returns the virtual time elapsed
func (c *VirtualClock) Now() time.Duration { return time.Duration(c.now.Load()) }

// Sleeps returns how many times Sleep was called
func (c *VirtualClock) Sleeps() int64 { return c.sleeps.Load() }
