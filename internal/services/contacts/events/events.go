// Package events distributes committed directory changes to in-process
// subscribers.
package events

import (
	"log"

	evbus "github.com/asaskevich/EventBus"
	"github.com/walletbook/walletbook/internal/services/contacts/storage"
)

// Topic is the bus topic for directory change events. Handlers receive a
// single storage.Event argument.
const Topic = "contacts.directory"

// Handler receives a committed directory event.
type Handler func(event storage.Event)

// Bus fans committed directory events out to subscribers. Publishing happens
// after the storage transaction commits, so handlers only ever see durable
// state.
type Bus struct {
	bus evbus.Bus
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// Publish delivers one committed event to all subscribers.
func (b *Bus) Publish(event storage.Event) {
	if b == nil || b.bus == nil {
		return
	}
	b.bus.Publish(Topic, event)
}

// Subscribe registers a synchronous handler for directory events.
func (b *Bus) Subscribe(handler Handler) error {
	if b == nil || b.bus == nil {
		return nil
	}
	return b.bus.Subscribe(Topic, handler)
}

// SubscribeAsync registers a handler that runs on its own goroutine per
// event. Ordered delivery is preserved within the subscription.
func (b *Bus) SubscribeAsync(handler Handler) error {
	if b == nil || b.bus == nil {
		return nil
	}
	return b.bus.SubscribeAsync(Topic, handler, true)
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(handler Handler) error {
	if b == nil || b.bus == nil {
		return nil
	}
	return b.bus.Unsubscribe(Topic, handler)
}

// WaitAsync blocks until all async handlers have drained.
func (b *Bus) WaitAsync() {
	if b == nil || b.bus == nil {
		return
	}
	b.bus.WaitAsync()
}

// LogSink returns a handler that writes one line per directory event.
func LogSink(logger *log.Logger) Handler {
	return func(event storage.Event) {
		if logger == nil {
			return
		}
		logger.Printf("event seq=%d type=%s owner=%s contact=%d", event.Seq, event.Type, event.Owner.Hex(), event.ContactID)
	}
}
