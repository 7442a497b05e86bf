package store

import (
	"context"

	"github.com/opsmind/opsmind/observe"
)

// NewSink adapts a Store into an observe.Sink so runtime events can be
// persisted alongside the span bridge.
func NewSink(s Store) observe.Sink {
	if s == nil {
		return observe.NoopSink{}
	}
	return observe.SinkFunc(func(ctx context.Context, event observe.Event) error {
		return s.SaveEvent(ctx, event)
	})
}
