package events

import (
	"sync"
	"time"
)

// EventType identifies what happened.
type EventType int

const (
	EventAuthSucceeded EventType = iota
	EventAuthRejected
	EventMatchCreated
	EventUserBanned
	EventTicketAnswered
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventAuthSucceeded:
		return "auth_succeeded"
	case EventAuthRejected:
		return "auth_rejected"
	case EventMatchCreated:
		return "match_created"
	case EventUserBanned:
		return "user_banned"
	case EventTicketAnswered:
		return "ticket_answered"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to every subscriber.
type Event struct {
	Type      EventType
	Data      interface{}
	Timestamp time.Time
}

// AuthData accompanies EventAuthSucceeded and EventAuthRejected.
type AuthData struct {
	Protocol   string
	TelegramID int64 // zero when rejected
	Reason     string
	RemoteAddr string
}

// MatchData accompanies EventMatchCreated.
type MatchData struct {
	MatchID uint
	User1ID uint
	User2ID uint
}

// ErrorData accompanies EventError.
type ErrorData struct {
	Error   error
	Context string
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
	bufferSize  int
	closed      bool
}

// NewBus creates a bus with a 100 event buffer per subscriber.
func NewBus() *Bus {
	return NewBusWithBuffer(100)
}

// NewBusWithBuffer creates a bus with the given per-subscriber buffer.
func NewBusWithBuffer(size int) *Bus {
	if size <= 0 {
		size = 100
	}
	return &Bus{bufferSize: size}
}

// Subscribe returns a channel receiving all future events. After Close the
// returned channel is already closed.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes ch.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish sends event to every subscriber, stamping it if needed.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// PublishError publishes EventError.
func (b *Bus) PublishError(err error, context string) {
	b.Publish(Event{Type: EventError, Data: ErrorData{Error: err, Context: context}})
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = nil
}
