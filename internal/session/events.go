package session

import (
	"sync"

	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/timer"
)

// EventType names a session event.
type EventType string

const (
	EventTick        EventType = "tick"
	EventStateChange EventType = "state_change"
	EventExpire      EventType = "expire"
	EventSubmitted   EventType = "submitted"
	// EventPersistenceError reports a failed snapshot write; the session keeps running.
	EventPersistenceError EventType = "persistence_error"
)

// Event is delivered to subscribers after the operation that produced it completes.
type Event struct {
	Type      EventType           `json:"type"`
	Status    model.SessionStatus `json:"status"`
	Remaining *timer.Remaining    `json:"remaining,omitempty"`
	Scope     timer.Scope         `json:"scope,omitempty"`
	State     *model.SessionState `json:"state,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Bus fans events out to any number of subscribers.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

func newBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Bus) publish(ev Event) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
