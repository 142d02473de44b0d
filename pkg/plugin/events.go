package plugin

import (
	"context"
	"time"
)

// Event is a message published on the internal bus. Payload is an
// arbitrary value; subscribers type-assert on topics they know.
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// EventHandler receives events for a subscription.
type EventHandler func(ctx context.Context, event Event)

// Subscription declares an event subscription a module wants installed
// before Start is called.
type Subscription struct {
	Topic   string
	Handler EventHandler
}

// EventBus routes events between modules inside the process.
type EventBus interface {
	// Publish delivers the event to all matching subscribers before returning.
	Publish(ctx context.Context, event Event) error

	// PublishAsync delivers the event on a separate goroutine.
	PublishAsync(ctx context.Context, event Event)

	// Subscribe registers a handler for an exact topic. The returned
	// function removes the subscription.
	Subscribe(topic string, handler EventHandler) func()

	// SubscribeAll registers a handler for every published event.
	SubscribeAll(handler EventHandler) func()
}
