package event_test

import (
	"context"

	"github.com/birdie-ai/velesdb-go/event"
)

// orderedPublisher is implemented by all ordered publishers.
type orderedPublisher[T any] interface {
	Publish(context.Context, T, string) error
	Resume(context.Context, string) error
	Sender(string) event.Sender[T]
	Shutdown(context.Context) error
}

var (
	_ orderedPublisher[event.TraversalEvent] = &event.OrderedGooglePublisher[event.TraversalEvent]{}
	_ event.Sender[event.TraversalEvent]     = &event.Publisher[event.TraversalEvent]{}
)
