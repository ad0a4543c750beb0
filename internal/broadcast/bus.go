// Package broadcast connects editing surfaces of one process. A surface
// that saves a shared note publishes the stored record so its siblings can
// adopt it without waiting for the next poll.
package broadcast

import (
	"sync"

	"shared-notes-server/internal/domain"
)

const subscriptionBuffer = 16

type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription is one surface's membership in a note's topic.
type Subscription struct {
	bus    *Bus
	noteID string
	ch     chan *domain.SharedNote
	once   sync.Once
}

func (b *Bus) Subscribe(noteID string) *Subscription {
	sub := &Subscription{
		bus:    b,
		noteID: noteID,
		ch:     make(chan *domain.SharedNote, subscriptionBuffer),
	}

	b.mu.Lock()
	if b.subs[noteID] == nil {
		b.subs[noteID] = make(map[*Subscription]struct{})
	}
	b.subs[noteID][sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// C yields records published by other subscriptions of the same note. It is
// closed by Close.
func (s *Subscription) C() <-chan *domain.SharedNote {
	return s.ch
}

// Publish hands note to every other subscription of the topic. Delivery is
// best effort: a subscriber with a full buffer misses the record.
func (s *Subscription) Publish(note *domain.SharedNote) {
	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()

	for sub := range s.bus.subs[s.noteID] {
		if sub == s {
			continue
		}
		select {
		case sub.ch <- note.Clone():
		default:
		}
	}
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		delete(s.bus.subs[s.noteID], s)
		if len(s.bus.subs[s.noteID]) == 0 {
			delete(s.bus.subs, s.noteID)
		}
		close(s.ch)
	})
}

// Subscribers reports how many subscriptions a topic has.
func (b *Bus) Subscribers(noteID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs[noteID])
}
