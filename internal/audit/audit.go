// Package audit keeps the most recent authentication attempts in memory so
// staff can see what is hitting the login endpoints.
package audit

import (
	"sync"
	"time"

	"tgmatch/internal/events"
)

// Entry is one recorded authentication attempt.
type Entry struct {
	ID         int64     `json:"id"`
	Protocol   string    `json:"protocol"`
	Success    bool      `json:"success"`
	TelegramID int64     `json:"telegram_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store holds audit entries.
type Store interface {
	// Add stores entry and returns its assigned ID.
	Add(entry Entry) int64
	// List returns entries, newest first.
	List() []Entry
	Count() int
}

// InMemoryStore is a fixed-size ring of entries.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int64
	maxSize int
}

// NewInMemoryStore keeps at most maxSize entries (default 100).
func NewInMemoryStore(maxSize int) *InMemoryStore {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &InMemoryStore{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
	}
}

func (s *InMemoryStore) Add(entry Entry) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID
	s.nextID++

	if len(s.entries) >= s.maxSize {
		copy(s.entries[1:], s.entries[:len(s.entries)-1])
		s.entries[0] = entry
	} else {
		s.entries = append(s.entries, Entry{})
		copy(s.entries[1:], s.entries[:len(s.entries)-1])
		s.entries[0] = entry
	}
	return entry.ID
}

func (s *InMemoryStore) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Record consumes auth events from ch into store until ch is closed.
func Record(ch <-chan events.Event, store Store) {
	for ev := range ch {
		data, ok := ev.Data.(events.AuthData)
		if !ok {
			continue
		}
		switch ev.Type {
		case events.EventAuthSucceeded, events.EventAuthRejected:
			store.Add(Entry{
				Protocol:   data.Protocol,
				Success:    ev.Type == events.EventAuthSucceeded,
				TelegramID: data.TelegramID,
				Reason:     data.Reason,
				RemoteAddr: data.RemoteAddr,
				Timestamp:  ev.Timestamp,
			})
		}
	}
}
