package events

import (
	"context"
	"slices"
	"sync"

	"github.com/zjrosen/register/internal/ledger/domain"
)

// Recorder is an in-memory domain.EventPublisher that keeps every event in
// publish order. Tests use it with OfType to assert on a single variant.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

var _ domain.EventPublisher = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes every subsequent Publish return err without recording.
// Passing nil restores normal behaviour.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Publish implements domain.EventPublisher.
func (r *Recorder) Publish(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of every recorded event.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Kinds returns the kind of every recorded event in order.
func (r *Recorder) Kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]domain.EventKind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind()
	}
	return kinds
}

// Reset drops every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// OfType returns the recorded events of variant E in publish order.
func OfType[E domain.Event](r *Recorder) []E {
	var out []E
	for _, e := range r.Events() {
		if v, ok := e.(E); ok {
			out = append(out, v)
		}
	}
	return out
}
