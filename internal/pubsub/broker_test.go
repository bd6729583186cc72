package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	sealed  EventType = "sealed"
	created EventType = "created"
)

func receive[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for event")
		return Event[T]{}
	}
}

func requireEmpty[T any](t *testing.T, ch <-chan Event[T]) {
	t.Helper()
	select {
	case ev := <-ch:
		require.Failf(t, "unexpected event", "%+v", ev)
	default:
	}
}

func TestBroker_PublishStampsEvents(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	broker := NewBroker[string]()
	broker.now = func() time.Time { return at }
	defer broker.Close()

	ch := broker.Subscribe(context.Background())
	d, err := broker.Publish(sealed, "docket-1")
	require.NoError(t, err)
	require.Equal(t, Delivery{Sequence: 1, Delivered: 1}, d)

	ev := receive(t, ch)
	require.Equal(t, Event[string]{Type: sealed, Payload: "docket-1", Sequence: 1, Timestamp: at}, ev)
}

func TestBroker_TypeFilters(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()
	ctx := context.Background()

	all := broker.Subscribe(ctx)
	onlySealed := broker.Subscribe(ctx, sealed)
	both := broker.Subscribe(ctx, sealed, created)

	d, err := broker.Publish(created, 1)
	require.NoError(t, err)
	require.Equal(t, 2, d.Delivered)
	_, err = broker.Publish(sealed, 2)
	require.NoError(t, err)

	require.Equal(t, 1, receive(t, all).Payload)
	require.Equal(t, 2, receive(t, all).Payload)
	require.Equal(t, 1, receive(t, both).Payload)
	require.Equal(t, 2, receive(t, both).Payload)

	ev := receive(t, onlySealed)
	require.Equal(t, 2, ev.Payload)
	require.Equal(t, uint64(2), ev.Sequence, "filtered subscribers still see broker-wide sequence numbers")
	requireEmpty(t, onlySealed)
}

func TestBroker_SequenceIncreases(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ch := broker.Subscribe(context.Background())
	for i := range 5 {
		_, err := broker.Publish(sealed, i)
		require.NoError(t, err)
	}

	var last uint64
	for range 5 {
		ev := receive(t, ch)
		require.Equal(t, last+1, ev.Sequence)
		last = ev.Sequence
	}
}

func TestBroker_DropsForFullSubscribers(t *testing.T) {
	broker := NewBrokerWithBuffer[int](1)
	defer broker.Close()

	slow := broker.Subscribe(context.Background())
	_, err := broker.Publish(sealed, 1)
	require.NoError(t, err)

	done := make(chan Delivery, 1)
	go func() {
		d, _ := broker.Publish(sealed, 2)
		done <- d
	}()

	select {
	case d := <-done:
		require.Equal(t, Delivery{Sequence: 2, Dropped: 1}, d)
	case <-time.After(time.Second):
		require.FailNow(t, "Publish blocked")
	}
	require.Equal(t, uint64(1), broker.Dropped())

	require.Equal(t, 1, receive(t, slow).Payload)
	_, err = broker.Publish(sealed, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(3), receive(t, slow).Sequence, "the gap at 2 marks the dropped event")
}

func TestBroker_ContextCancellation(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

func TestBroker_Close(t *testing.T) {
	broker := NewBroker[string]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1 := broker.Subscribe(ctx)
	ch2 := broker.Subscribe(ctx, sealed)
	broker.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	require.False(t, ok1)
	require.False(t, ok2)
	require.Equal(t, 0, broker.SubscriberCount())

	_, ok3 := <-broker.Subscribe(ctx)
	require.False(t, ok3, "subscribing after close yields a closed channel")

	_, err := broker.Publish(sealed, "late")
	require.ErrorIs(t, err, ErrClosed)

	// cancelling after close must not double-close
	cancel()
	broker.Close()
}

func TestNewBrokerWithBuffer_FallsBackToDefault(t *testing.T) {
	require.Equal(t, defaultBufferSize, NewBrokerWithBuffer[int](0).bufferSize)
}
