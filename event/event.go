// Package event publishes events to pubsub topics, wrapped in a common [Body].
//
// Graph traversals streamed by [velesdb.Client.StreamTraversal] can be relayed to a topic with [Relay].
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/birdie-ai/velesdb-go/tracing"
	"gocloud.dev/pubsub"
)

type (
	// Publisher publishes events of type T to a gocloud topic, see [pubsub.OpenTopic] for the supported URLs.
	Publisher[T any] struct {
		name  string
		topic *pubsub.Topic
	}

	// Body is the message body of every published event.
	Body[T any] struct {
		TraceID string `json:"trace_id,omitempty"`
		Name    string `json:"name"`
		Event   T      `json:"event"`
	}

	// Sender publishes a single event.
	Sender[T any] interface {
		Publish(ctx context.Context, event T) error
	}

	// SenderFunc adapts a function to a [Sender].
	SenderFunc[T any] func(ctx context.Context, event T) error
)

// NewPublisher creates a publisher of events with the given name on the topic.
// The caller keeps the ownership of the topic.
func NewPublisher[T any](name string, t *pubsub.Topic) *Publisher[T] {
	return &Publisher[T]{
		name:  name,
		topic: t,
	}
}

// OpenPublisher opens the topic at url and creates a publisher for it.
// Call [Publisher.Shutdown] when done.
func OpenPublisher[T any](ctx context.Context, name, url string) (*Publisher[T], error) {
	t, err := pubsub.OpenTopic(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening topic %q: %w", url, err)
	}
	return NewPublisher[T](name, t), nil
}

// Publish publishes the event. The trace ID of ctx, if any, is sent along.
func (p *Publisher[T]) Publish(ctx context.Context, event T) error {
	body, err := serializeEvent(ctx, p.name, event)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.topic.Send(ctx, &pubsub.Message{Body: body})
	samplePublish(p.name, time.Since(start), len(body), err)
	return err
}

// Shutdown flushes pending messages and closes the topic.
func (p *Publisher[T]) Shutdown(ctx context.Context) error {
	return p.topic.Shutdown(ctx)
}

// Publish calls f.
func (f SenderFunc[T]) Publish(ctx context.Context, event T) error {
	return f(ctx, event)
}

func serializeEvent[T any](ctx context.Context, name string, event T) ([]byte, error) {
	traceID, _ := tracing.CtxGetTraceID(ctx)
	body, err := json.Marshal(Body[T]{
		TraceID: traceID,
		Name:    name,
		Event:   event,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %q event: %w", name, err)
	}
	return body, nil
}
