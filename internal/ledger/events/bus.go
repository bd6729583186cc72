// Package events fans domain events out to in-process subscribers.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/log"
	"github.com/zjrosen/register/internal/pubsub"
)

// Bus is a domain.EventPublisher backed by a pubsub.Broker.
// Delivery to slow subscribers is lossy; a subscriber detects loss through
// gaps in pubsub.Event.Sequence.
type Bus struct {
	broker *pubsub.Broker[domain.Event]
}

var _ domain.EventPublisher = (*Bus)(nil)

// NewBus creates a bus whose subscribers buffer up to bufferSize events.
func NewBus(bufferSize int) *Bus {
	return &Bus{broker: pubsub.NewBrokerWithBuffer[domain.Event](bufferSize)}
}

// Publish implements domain.EventPublisher.
func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := b.broker.Publish(pubsub.EventType(event.Kind()), event)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Kind(), err)
	}
	if d.Dropped > 0 {
		log.Warn(log.CatEvents, "event dropped for slow subscribers",
			"kind", event.Kind(), "register", event.Register(), "dropped", d.Dropped, "seq", d.Sequence)
	}
	return nil
}

// Subscribe streams events of the given kinds, or every event when none is
// given, until ctx is cancelled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, kinds ...domain.EventKind) <-chan pubsub.Event[domain.Event] {
	types := make([]pubsub.EventType, len(kinds))
	for i, k := range kinds {
		types[i] = pubsub.EventType(k)
	}
	return b.broker.Subscribe(ctx, types...)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	return b.broker.SubscriberCount()
}

// Close closes every subscription. Publish fails afterwards.
func (b *Bus) Close() {
	b.broker.Close()
}

// Listen starts a goroutine that calls fn for every event of type E until ctx
// is cancelled or the bus is closed. The returned function waits for it to exit.
func Listen[E domain.Event](ctx context.Context, b *Bus, fn func(E)) (wait func()) {
	var zero E
	ch := b.Subscribe(ctx, zero.Kind())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range ch {
			if e, ok := ev.Payload.(E); ok {
				fn(e)
			}
		}
	}()
	return wg.Wait
}
