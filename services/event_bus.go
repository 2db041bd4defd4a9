package services

import (
	"sync"

	"checkin-keeper/internal/logger"
	"checkin-keeper/models"
)

const eventBufferSize = 64

// EventBus fans account lifecycle events out to subscribers. Publishing
// never blocks: a subscriber that stops draining its channel loses events
// rather than stalling the writer.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan models.DomainEvent
	nextID      int
	closed      bool
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[int]chan models.DomainEvent)}
}

// Subscribe registers a listener. The returned cancel func removes the
// subscription and closes the channel.
func (b *EventBus) Subscribe() (<-chan models.DomainEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan models.DomainEvent, eventBufferSize)
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (b *EventBus) Publish(event models.DomainEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			logger.Warn("event subscriber is not draining, dropping event",
				"subscriber", id, "event", string(event.Type()))
		}
	}
}

// Close shuts the bus down and closes every subscriber channel.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
