package events

import (
	"sync"
	"time"
)

// Name identifies a loading signal
type Name string

const (
	StartLoading Name = "startLoading"
	StopLoading  Name = "stopLoading"
)

// Event is one published signal
type Event struct {
	Name    Name
	Payload string
	At      time.Time
}

// Handler receives published events. Handlers run on the publishing
// goroutine and must not block.
type Handler func(Event)

// Bus is an in-process publish/subscribe channel. Publishing is
// fire-and-forget: there is no acknowledgment from subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	nextID   uint64
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[uint64]Handler),
	}
}

// Publish delivers an event to every current subscriber
func (b *Bus) Publish(name Name, payload string) {
	evt := Event{Name: name, Payload: payload, At: time.Now()}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}

// Subscribe registers a handler and returns a function that removes it.
// Calling the returned function more than once is safe.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Len returns the number of subscribers
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

type discard struct{}

func (discard) Publish(Name, string) {}

// Discard drops every event
var Discard = discard{}
