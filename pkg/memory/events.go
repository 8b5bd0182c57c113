package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventInitialized      EventType = "initialized"
	EventIndexed          EventType = "indexed"
	EventDeleted          EventType = "deleted"
	EventCleared          EventType = "cleared"
	EventProviderFallback EventType = "provider_fallback"
	EventReindexed        EventType = "reindexed"
	EventArchived         EventType = "archived"
)

// Event is a typed lifecycle notification. Only the fields relevant to the
// event type are populated.
type Event struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	Time     time.Time `json:"time"`
	Source   Source    `json:"source,omitempty"`
	SourceID string    `json:"source_id,omitempty"`
	Count    int       `json:"count,omitempty"`
	Provider string    `json:"provider,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// EventBus fans lifecycle events out to subscribers. Handlers run
// synchronously on the emitting goroutine and must not block.
type EventBus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns its cancel function.
func (b *EventBus) Subscribe(fn func(Event)) func() {
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

// Emit assigns the event an id and timestamp and delivers it to every
// subscriber.
func (b *EventBus) Emit(e Event) {
	e.ID = uuid.New().String()
	e.Time = time.Now().UTC()

	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
}
