// Package realtime fans change notifications out to a user's open event streams.
package realtime

import (
	"context"
	"sync"
	"time"
)

const (
	EventImageChanged      = "image-change"
	EventCollectionChanged = "collection-change"
	EventNoteChanged       = "note-change"
	EventSessionLocked     = "session-locked"
	EventSessionEnded      = "session-ended"
	EventHeartbeat         = "heartbeat"

	defaultBufferSize = 16
)

// Message describes one change visible to a single user.
type Message struct {
	UserID    string
	SessionID string
	EventType string
	RecordIDs []string
	Timestamp time.Time
}

// Publisher accepts messages for delivery.
type Publisher interface {
	Publish(message Message)
}

// Dispatcher delivers published messages to every live subscription of the target user.
// Slow subscribers drop messages rather than block publishers.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Message
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe registers a stream for userID until ctx ends or the returned cleanup runs.
func (d *Dispatcher) Subscribe(ctx context.Context, userID string) (<-chan Message, func()) {
	if userID == "" {
		ch := make(chan Message)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Message, d.bufferSize),
	}
	d.register(userID, sub)

	released := make(chan struct{})
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(userID, sub.id)
			close(released)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-released:
		}
	}()
	return sub.stream, cleanup
}

func (d *Dispatcher) Publish(message Message) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subscribers))
	for _, sub := range subscribers {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscriptions for userID.
func (d *Dispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(userID string, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*subscriber)
	}
	d.subscribers[userID][sub.id] = sub
}

func (d *Dispatcher) unregister(userID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}
