// Package autolock ends a session after a fixed period without user activity.
package autolock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultWindow is the inactivity period used when none is configured.
	DefaultWindow = 10 * time.Minute
	tickInterval  = time.Second
)

// Config describes a Timer.
type Config struct {
	Window time.Duration
	Clock  Clock
	// OnLock runs once, outside the timer's lock, when the window elapses or Lock is called.
	OnLock func()
}

// Status is a point-in-time view of a Timer.
type Status struct {
	Locked       bool
	Remaining    time.Duration
	LastActivity time.Time
}

// Formatted renders the remaining time as m:ss.
func (s Status) Formatted() string {
	return FormatRemaining(s.Remaining)
}

// Timer counts down an inactivity window and locks when it elapses.
//
// Every arm bumps a generation counter; deferred actions scheduled by an older arm see a
// stale generation and do nothing, so re-arming never stacks lock events.
type Timer struct {
	mu           sync.Mutex
	window       time.Duration
	clock        Clock
	onLock       func()
	generation   uint64
	lastActivity time.Time
	remaining    time.Duration
	locked       bool
	stopped      bool
	deadline     Stopper
	ticker       Stopper
	done         chan struct{}
}

// New constructs an idle Timer. Call Start to begin counting down.
func New(cfg Config) *Timer {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	onLock := cfg.OnLock
	if onLock == nil {
		onLock = func() {}
	}
	return &Timer{
		window:    window,
		clock:     clock,
		onLock:    onLock,
		remaining: window,
		done:      make(chan struct{}),
	}
}

// Window returns the configured inactivity window.
func (t *Timer) Window() time.Duration {
	return t.window
}

// Start arms the timer as though activity had just occurred.
func (t *Timer) Start() {
	t.Touch()
}

// Touch records activity and restarts the countdown. It reports false once the timer has locked or stopped.
func (t *Timer) Touch() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locked || t.stopped {
		return false
	}
	t.arm()
	return true
}

func (t *Timer) arm() {
	t.generation++
	generation := t.generation
	t.lastActivity = t.clock.Now()
	t.remaining = t.window
	t.cancelScheduled()
	t.deadline = t.clock.AfterFunc(t.window, func() { t.expire(generation) })
	t.ticker = t.clock.AfterFunc(tickInterval, func() { t.tick(generation) })
}

func (t *Timer) cancelScheduled() {
	if t.deadline != nil {
		t.deadline.Stop()
		t.deadline = nil
	}
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
}

func (t *Timer) tick(generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation || t.locked || t.stopped {
		return
	}
	elapsed := t.clock.Now().Sub(t.lastActivity).Truncate(time.Second)
	remaining := t.window - elapsed
	if remaining <= 0 {
		t.remaining = 0
		t.ticker = nil
		return
	}
	t.remaining = remaining
	t.ticker = t.clock.AfterFunc(tickInterval, func() { t.tick(generation) })
}

func (t *Timer) expire(generation uint64) {
	t.mu.Lock()
	if generation != t.generation {
		t.mu.Unlock()
		return
	}
	t.lockLocked()
}

// Lock forces the lock transition immediately. It is a no-op if already locked or stopped.
func (t *Timer) Lock() {
	t.mu.Lock()
	t.lockLocked()
}

// lockLocked expects t.mu held and releases it.
func (t *Timer) lockLocked() {
	if t.locked || t.stopped {
		t.mu.Unlock()
		return
	}
	t.locked = true
	t.remaining = 0
	t.cancelScheduled()
	close(t.done)
	onLock := t.onLock
	t.mu.Unlock()
	onLock()
}

// Stop cancels the countdown without locking. Used when the session ends some other way.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locked || t.stopped {
		return
	}
	t.stopped = true
	t.cancelScheduled()
	close(t.done)
}

// Done is closed once the timer locks or stops.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

// Status returns the current countdown state.
func (t *Timer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Locked:       t.locked,
		Remaining:    t.remaining,
		LastActivity: t.lastActivity,
	}
}

// Watch resets the timer for every signal from source until ctx ends or the timer finishes.
func (t *Timer) Watch(ctx context.Context, source ActivitySource) {
	signals := source.Activity()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			t.Touch()
		}
	}
}

// FormatRemaining renders a duration as minutes and zero-padded seconds.
func FormatRemaining(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	seconds := int64(remaining / time.Second)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
