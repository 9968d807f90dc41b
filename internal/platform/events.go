package platform

import (
	"sync"
	"time"

	"github.com/unify-home/unify-core/internal/device"
)

// EventType identifies what an adapter noticed happening.
type EventType string

// Event type constants.
const (
	EventStateChange   EventType = "state_change"
	EventDeviceAdded   EventType = "device_added"
	EventDeviceRemoved EventType = "device_removed"
)

// Event is an adapter-originated notification.
type Event struct {
	Type      EventType       `json:"type"`
	DeviceID  string          `json:"device_id"`
	Platform  device.Platform `json:"platform"`
	Timestamp time.Time       `json:"timestamp"`

	// State carries the new snapshot for state_change events.
	State device.State `json:"state,omitempty"`

	// Device carries the full record for device_added events.
	Device *device.Device `json:"device,omitempty"`
}

// EventHandler is the callback signature for event subscribers.
//
// Handlers are invoked synchronously in publish order so subscribers that
// maintain derived state (routing cache, state cache) observe events in
// the order they occurred. Handlers must not block.
type EventHandler func(Event)

// Subscription is a handle on an active event subscription.
type Subscription interface {
	// Cancel removes the subscription. Safe to call more than once.
	Cancel()
}

// EventBus is an explicit publish/subscribe channel for adapter events.
// Each adapter owns one bus; the platform registry re-publishes through
// its own. The zero value is not usable; create with NewEventBus.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[int]EventHandler
	nextID   int
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[int]EventHandler),
	}
}

// Subscribe registers a handler and returns its cancellation handle.
func (b *EventBus) Subscribe(h EventHandler) Subscription {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return &busSubscription{bus: b, id: id}
}

// Publish delivers an event to every current subscriber, synchronously,
// in no particular subscriber order. A zero timestamp is stamped with
// the current time.
func (b *EventBus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	// Handlers run outside the lock so they may subscribe/unsubscribe.
	for _, h := range handlers {
		h(e)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// busSubscription implements Subscription for EventBus.
type busSubscription struct {
	bus  *EventBus
	id   int
	once sync.Once
}

// Cancel removes the handler from the bus. Idempotent.
func (s *busSubscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.handlers, s.id)
		s.bus.mu.Unlock()
	})
}
