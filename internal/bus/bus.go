// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies different event types
type EventType string

// Event types
const (
	// Conversation events
	EventTypeMessageAppended EventType = "conversation.message_appended"
	EventTypeMessageUpdated  EventType = "conversation.message_updated"
	EventTypeChatRequested   EventType = "conversation.chat_requested"
	EventTypeChatCompleted   EventType = "conversation.chat_completed"
	EventTypeChatFailed      EventType = "conversation.chat_failed"

	// Speech events
	EventTypeSpeechCompleted EventType = "speech.completed"
	EventTypeSpeechFailed    EventType = "speech.failed"

	// Reveal events
	EventTypeRevealTransition EventType = "reveal.transition"

	// Avatar events
	EventTypeExpressionChanged EventType = "avatar.expression_changed"
	EventTypePhonemeChanged    EventType = "avatar.phoneme_changed"
	EventTypeRigLoaded         EventType = "avatar.rig_loaded"

	// Stage events
	EventTypeClientConnected    EventType = "stage.client_connected"
	EventTypeClientDisconnected EventType = "stage.client_disconnected"
	EventTypeTrackEvent         EventType = "stage.track_event"

	// Config events
	EventTypeConfigReloaded EventType = "config.reloaded"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Seq  uint64
	Time time.Time
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	nextID   uint64
	seq      atomic.Uint64
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe adds a handler for an event type and returns a function that
// removes it again
func (b *EventBus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) func() {
	cancels := make([]func(), 0, len(eventTypes))
	for _, et := range eventTypes {
		cancels = append(cancels, b.Subscribe(et, handler))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

func (b *EventBus) snapshot(event *Event) []Handler {
	event.Seq = b.seq.Add(1)
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.handlers[event.Type]
	handlers := make([]Handler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	return handlers
}

// Publish sends an event to all subscribed handlers
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(&event) {
		// Call handlers in goroutines to avoid blocking
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	handlers := b.snapshot(&event)

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// HandlerCount returns the number of handlers subscribed to an event type
func (b *EventBus) HandlerCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]subscription)
}
