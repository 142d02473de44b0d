// Package event implements the in-process plugin.EventBus that carries
// domain events between Depot modules.
package event

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/depotlabs/depot/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ plugin.EventBus = (*Bus)(nil)

// Bus is a topic-keyed fan-out bus. Handlers run synchronously on
// Publish and on a single goroutine per event on PublishAsync. A
// panicking handler is recovered and logged; remaining handlers still run.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[int]plugin.EventHandler
	allSubs map[int]plugin.EventHandler
	nextID  int
	logger  *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:    make(map[string]map[int]plugin.EventHandler),
		allSubs: make(map[int]plugin.EventHandler),
		logger:  logger,
	}
}

// Subscribe registers handler for an exact topic and returns an
// unsubscribe function.
func (b *Bus) Subscribe(topic string, handler plugin.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]plugin.EventHandler)
	}
	b.subs[topic][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// SubscribeAll registers handler for every event and returns an
// unsubscribe function.
func (b *Bus) SubscribeAll(handler plugin.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.allSubs[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.allSubs, id)
	}
}

// Publish delivers event to all matching subscribers before returning.
// A missing Timestamp is filled in with the current time.
func (b *Bus) Publish(ctx context.Context, event plugin.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, h := range b.snapshot(event.Topic) {
		b.invoke(ctx, h, event)
	}
	return nil
}

// PublishAsync delivers event on a separate goroutine.
func (b *Bus) PublishAsync(ctx context.Context, event plugin.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	handlers := b.snapshot(event.Topic)
	go func() {
		for _, h := range handlers {
			b.invoke(ctx, h, event)
		}
	}()
}

// snapshot copies the matching handlers so delivery happens outside the lock.
func (b *Bus) snapshot(topic string) []plugin.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]plugin.EventHandler, 0, len(b.subs[topic])+len(b.allSubs))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	for _, h := range b.allSubs {
		handlers = append(handlers, h)
	}
	return handlers
}

func (b *Bus) invoke(ctx context.Context, h plugin.EventHandler, event plugin.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	h(ctx, event)
}
