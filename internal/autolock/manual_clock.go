package autolock

import (
	"sync"
	"time"
)

// ManualClock is a Clock that only moves when Advance is called.
// Scheduled actions run on the caller's goroutine in deadline order.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	nextSeq int
	pending []*manualAction
}

type manualAction struct {
	clock   *ManualClock
	at      time.Time
	seq     int
	action  func()
	stopped bool
	fired   bool
}

// NewManualClock starts a ManualClock at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(delay time.Duration, action func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	scheduled := &manualAction{clock: c, at: c.now.Add(delay), seq: c.nextSeq, action: action}
	c.nextSeq++
	c.compactLocked()
	c.pending = append(c.pending, scheduled)
	return scheduled
}

func (a *manualAction) Stop() bool {
	a.clock.mu.Lock()
	defer a.clock.mu.Unlock()
	if a.stopped || a.fired {
		return false
	}
	a.stopped = true
	return true
}

// Advance moves time forward, running due actions in deadline order.
func (c *ManualClock) Advance(delta time.Duration) {
	c.mu.Lock()
	target := c.now.Add(delta)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *manualAction
		for _, candidate := range c.pending {
			if candidate.stopped || candidate.fired || candidate.at.After(target) {
				continue
			}
			if next == nil || candidate.at.Before(next.at) || (candidate.at.Equal(next.at) && candidate.seq < next.seq) {
				next = candidate
			}
		}
		if next == nil {
			c.now = target
			c.compactLocked()
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.action()
	}
}

// compactLocked drops actions that have fired or been stopped. Callers hold c.mu.
func (c *ManualClock) compactLocked() {
	live := c.pending[:0]
	for _, scheduled := range c.pending {
		if !scheduled.stopped && !scheduled.fired {
			live = append(live, scheduled)
		}
	}
	clear(c.pending[len(live):])
	c.pending = live
}

// Pending reports how many scheduled actions have neither fired nor been stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, scheduled := range c.pending {
		if !scheduled.stopped && !scheduled.fired {
			count++
		}
	}
	return count
}
