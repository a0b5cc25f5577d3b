package autolock

import (
	"errors"
	"strings"
)

// ActivityKind names an input event that counts as user activity.
type ActivityKind string

const (
	ActivityPointerDown ActivityKind = "pointerdown"
	ActivityPointerMove ActivityKind = "pointermove"
	ActivityKeyPress    ActivityKind = "keypress"
	ActivityScroll      ActivityKind = "scroll"
	ActivityTouchStart  ActivityKind = "touchstart"
	ActivityClick       ActivityKind = "click"
)

// ErrUnknownActivity indicates the reported event does not qualify as activity.
var ErrUnknownActivity = errors.New("autolock: unknown activity kind")

var qualifyingActivity = map[ActivityKind]struct{}{
	ActivityPointerDown: {},
	ActivityPointerMove: {},
	ActivityKeyPress:    {},
	ActivityScroll:      {},
	ActivityTouchStart:  {},
	ActivityClick:       {},
}

// ParseActivityKind validates a client-reported event name.
// The browser aliases mousedown and mousemove are accepted.
func ParseActivityKind(raw string) (ActivityKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "mousedown":
		normalized = string(ActivityPointerDown)
	case "mousemove":
		normalized = string(ActivityPointerMove)
	}
	kind := ActivityKind(normalized)
	if _, ok := qualifyingActivity[kind]; !ok {
		return "", ErrUnknownActivity
	}
	return kind, nil
}

// ActivitySource delivers activity signals to a Timer.
type ActivitySource interface {
	Activity() <-chan struct{}
}

// ActivityFeed is an ActivitySource that coalesces bursts of activity.
// At most one signal is pending at a time; further notifications are dropped until it is consumed.
type ActivityFeed struct {
	signals chan struct{}
}

// NewActivityFeed constructs an empty feed.
func NewActivityFeed() *ActivityFeed {
	return &ActivityFeed{signals: make(chan struct{}, 1)}
}

// Notify records activity without blocking.
func (f *ActivityFeed) Notify() {
	select {
	case f.signals <- struct{}{}:
	default:
	}
}

// Activity exposes the signal channel.
func (f *ActivityFeed) Activity() <-chan struct{} {
	return f.signals
}
