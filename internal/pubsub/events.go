// Package pubsub is a non-blocking, sequence-numbered in-process broker.
package pubsub

import (
	"context"
	"time"
)

// EventType lets subscribers filter what they receive.
type EventType string

// LogEvent is the type carried by log line broadcasts.
const LogEvent EventType = "log"

// Event is one published payload.
type Event[T any] struct {
	Type    EventType
	Payload T
	// Sequence increases by one per Publish call on the same broker, so
	// subscribers can detect dropped events by looking for gaps.
	Sequence  uint64
	Timestamp time.Time
}

// Delivery reports what happened to a single Publish call.
type Delivery struct {
	Sequence  uint64
	Delivered int
	Dropped   int
}

// Subscriber provides filtered subscriptions.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context, types ...EventType) <-chan Event[T]
}

// Publisher publishes typed payloads.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T) (Delivery, error)
}

var (
	_ Subscriber[int] = (*Broker[int])(nil)
	_ Publisher[int]  = (*Broker[int])(nil)
)
