package pubsub

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

const defaultBufferSize = 64

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("broker closed")

// subscription is one subscriber's channel and type filter. An empty filter
// matches every type.
type subscription[T any] struct {
	ch      chan Event[T]
	types   []EventType
	dropped uint64
}

func (s *subscription[T]) wants(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// Broker fans events out to subscribers without blocking the publisher.
// Events are numbered per broker; a subscriber whose buffer is full misses
// the event and sees a gap in Sequence.
type Broker[T any] struct {
	mu         sync.Mutex
	subs       map[*subscription[T]]struct{}
	seq        uint64
	closed     bool
	done       chan struct{}
	bufferSize int
	now        func() time.Time
}

// NewBroker creates a new broker with the default buffer size (64).
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a new broker with a custom buffer size.
// Sizes below 1 fall back to the default.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size < 1 {
		size = defaultBufferSize
	}
	return &Broker[T]{
		subs:       make(map[*subscription[T]]struct{}),
		done:       make(chan struct{}),
		bufferSize: size,
		now:        time.Now,
	}
}

// Subscribe returns a channel receiving events of the given types, or every
// event when no type is given. The channel is closed when ctx is cancelled or
// the broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context, types ...EventType) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	sub := &subscription[T]{ch: make(chan Event[T], b.bufferSize), types: slices.Clone(types)}
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(sub)
		case <-b.done:
		}
	}()
	return sub.ch
}

func (b *Broker[T]) unsubscribe(sub *subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish numbers the event and offers it to every matching subscriber.
// It never blocks; the returned Delivery counts who missed it.
func (b *Broker[T]) Publish(eventType EventType, payload T) (Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Delivery{}, ErrClosed
	}

	b.seq++
	event := Event[T]{
		Type:      eventType,
		Payload:   payload,
		Sequence:  b.seq,
		Timestamp: b.now(),
	}

	d := Delivery{Sequence: b.seq}
	for sub := range b.subs {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- event:
			d.Delivered++
		default:
			sub.dropped++
			d.Dropped++
		}
	}
	return d, nil
}

// Close closes every subscriber channel. Later Subscribe calls get a closed
// channel and Publish returns ErrClosed.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns the total events missed by current subscribers.
func (b *Broker[T]) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n uint64
	for sub := range b.subs {
		n += sub.dropped
	}
	return n
}
