package event

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
)

// OrderedGooglePublisher publishes events to a Google Cloud Pub/Sub topic with message ordering.
// Events with the same ordering key are delivered in the order they were published.
type OrderedGooglePublisher[T any] struct {
	eventName string
	client    *pubsub.Client
	topic     *pubsub.Topic
}

// NewOrderedGooglePublisher creates an ordered publisher for the given project, topic and event name.
// Ordering is specific to Google Pub/Sub, gocloud topics can't provide it.
func NewOrderedGooglePublisher[T any](ctx context.Context, project, topicName, eventName string) (*OrderedGooglePublisher[T], error) {
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	topic := client.Topic(topicName)
	topic.EnableMessageOrdering = true
	return &OrderedGooglePublisher[T]{eventName: eventName, client: client, topic: topic}, nil
}

// Publish publishes the event with the given ordering key and waits for the server to accept it.
// After a failure, publishing with the same key fails until [OrderedGooglePublisher.Resume] is called.
func (p *OrderedGooglePublisher[T]) Publish(ctx context.Context, event T, orderingKey string) error {
	body, err := serializeEvent(ctx, p.eventName, event)
	if err != nil {
		return err
	}

	start := time.Now()
	res := p.topic.Publish(ctx, &pubsub.Message{
		OrderingKey: orderingKey,
		Data:        body,
	})
	_, err = res.Get(ctx)
	samplePublish(p.eventName, time.Since(start), len(body), err)
	return err
}

// Resume allows publishing again with the ordering key after a failure.
func (p *OrderedGooglePublisher[T]) Resume(_ context.Context, orderingKey string) error {
	p.topic.ResumePublish(orderingKey)
	return nil
}

// Sender returns a [Sender] publishing all events with the given ordering key.
func (p *OrderedGooglePublisher[T]) Sender(orderingKey string) Sender[T] {
	return SenderFunc[T](func(ctx context.Context, event T) error {
		return p.Publish(ctx, event, orderingKey)
	})
}

// Shutdown sends pending messages and releases the client.
func (p *OrderedGooglePublisher[T]) Shutdown(context.Context) error {
	p.topic.Stop()
	return p.client.Close()
}
