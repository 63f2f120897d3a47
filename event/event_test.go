package event_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/birdie-ai/velesdb-go/event"
	"github.com/birdie-ai/velesdb-go/tracing"
	"github.com/birdie-ai/velesdb-go/velesdb"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"gocloud.dev/pubsub"

	// load in memory driver
	_ "gocloud.dev/pubsub/mempubsub"
)

func TestPublishEvent(t *testing.T) {
	t.Parallel()

	url := newTopicURL(t)
	ctx := context.Background()

	type Event struct {
		Field string `json:"field"`
	}

	publisher, err := event.OpenPublisher[Event](ctx, "test", url)
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(t, publisher)
	subscription := openSubscription(t, url)

	if err := publisher.Publish(tracing.CtxWithTraceID(ctx, "trace-id"), Event{Field: "some data"}); err != nil {
		t.Fatal(err)
	}

	got := receive[Event](t, subscription)
	want := event.Body[Event]{
		TraceID: "trace-id",
		Name:    "test",
		Event:   Event{Field: "some data"},
	}
	if want != got {
		t.Fatalf("got %+v != want %+v", got, want)
	}
}

func TestPublishEventWithoutTracingInfo(t *testing.T) {
	t.Parallel()

	url := newTopicURL(t)
	ctx := context.Background()

	topic, err := pubsub.OpenTopic(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(t, topic)
	subscription := openSubscription(t, url)

	type Event struct{}

	publisher := event.NewPublisher[Event]("test", topic)
	if err := publisher.Publish(ctx, Event{}); err != nil {
		t.Fatal(err)
	}

	got := receive[Event](t, subscription)
	if want := (event.Body[Event]{Name: "test"}); want != got {
		t.Fatalf("got %+v != want %+v", got, want)
	}
}

func TestOpenPublisherInvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := event.OpenPublisher[int](context.Background(), "test", "nope://topic"); err == nil {
		t.Fatal("want error for unknown scheme")
	}
}

const traversal = "event: node\ndata: {\"id\":2,\"depth\":1,\"path\":[1,2]}\n\n" +
	"event: stats\ndata: {\"nodes_visited\":1,\"elapsed_ms\":1}\n\n" +
	"event: done\ndata: {\"total_nodes\":1,\"max_depth_reached\":1,\"elapsed_ms\":2}\n\n"

// streamTransport serves a fixed traversal stream.
type streamTransport string

func (s streamTransport) Request(context.Context, string, string, any) ([]byte, error) {
	return nil, errors.New("unexpected request")
}

func (s streamTransport) OpenStream(context.Context, string) (*velesdb.StreamResponse, error) {
	return &velesdb.StreamResponse{StatusCode: 200, Body: nopCloser{strings.NewReader(string(s))}}, nil
}

type nopCloser struct {
	*strings.Reader
}

func (nopCloser) Close() error { return nil }

func TestRelayTraversal(t *testing.T) {
	t.Parallel()

	url := newTopicURL(t)
	ctx := tracing.CtxWithTraceID(context.Background(), "trace-id")

	publisher, err := event.OpenPublisher[event.TraversalEvent](ctx, event.TraversalEventName, url)
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(t, publisher)
	subscription := openSubscription(t, url)

	var forwarded []string
	relay := event.NewRelay(ctx, "social", publisher, velesdb.StreamHandlers{
		OnNode: func(n velesdb.NodeEvent) {
			forwarded = append(forwarded, fmt.Sprintf("node %d", n.ID))
		},
		OnDone: func(velesdb.DoneEvent) {
			forwarded = append(forwarded, "done")
		},
	})

	client := velesdb.New(streamTransport(traversal))
	if err := client.StreamTraversal(ctx, "social", velesdb.TraversalParams{StartNode: 1}, relay.Handlers()); err != nil {
		t.Fatal(err)
	}
	if err := relay.Err(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"node 2", "done"}, forwarded); diff != "" {
		t.Fatalf("forwarded mismatch (-want +got):\n%s", diff)
	}

	want := []event.Body[event.TraversalEvent]{
		{TraceID: "trace-id", Name: event.TraversalEventName, Event: event.TraversalEvent{
			Collection: "social", Type: "node", Node: &velesdb.NodeEvent{ID: 2, Depth: 1, Path: []uint64{1, 2}},
		}},
		{TraceID: "trace-id", Name: event.TraversalEventName, Event: event.TraversalEvent{
			Collection: "social", Type: "stats", Stats: &velesdb.StatsEvent{NodesVisited: 1, ElapsedMs: 1},
		}},
		{TraceID: "trace-id", Name: event.TraversalEventName, Event: event.TraversalEvent{
			Collection: "social", Type: "done", Done: &velesdb.DoneEvent{TotalNodes: 1, MaxDepthReached: 1, ElapsedMs: 2},
		}},
	}
	var got []event.Body[event.TraversalEvent]
	for range want {
		got = append(got, receive[event.TraversalEvent](t, subscription))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("published mismatch (-want +got):\n%s", diff)
	}
}

func TestRelayCollectsPublishErrors(t *testing.T) {
	t.Parallel()

	publishErr := errors.New("topic is gone")
	var types []string
	sender := event.SenderFunc[event.TraversalEvent](func(_ context.Context, ev event.TraversalEvent) error {
		types = append(types, ev.Type)
		if ev.Type == "node" {
			return publishErr
		}
		return nil
	})

	var done bool
	relay := event.NewRelay(context.Background(), "social", sender, velesdb.StreamHandlers{
		OnDone: func(velesdb.DoneEvent) { done = true },
	})
	client := velesdb.New(streamTransport(traversal))
	if err := client.StreamTraversal(context.Background(), "social", velesdb.TraversalParams{}, relay.Handlers()); err != nil {
		t.Fatal(err)
	}

	if !errors.Is(relay.Err(), publishErr) {
		t.Fatalf("got %v; want %v", relay.Err(), publishErr)
	}
	if !done {
		t.Fatal("publish failures must not stop the stream")
	}
	if diff := cmp.Diff([]string{"node", "stats", "done"}, types); diff != "" {
		t.Fatalf("published mismatch (-want +got):\n%s", diff)
	}
}

func TestRelayStreamError(t *testing.T) {
	t.Parallel()

	var got []event.TraversalEvent
	sender := event.SenderFunc[event.TraversalEvent](func(_ context.Context, ev event.TraversalEvent) error {
		got = append(got, ev)
		return nil
	})
	var streamErr error
	relay := event.NewRelay(context.Background(), "g", sender, velesdb.StreamHandlers{
		OnError: func(err error) { streamErr = err },
	})

	client := velesdb.New(streamTransport("event: error\ndata: {\"error\":\"start node not found\"}\n\n"))
	if err := client.StreamTraversal(context.Background(), "g", velesdb.TraversalParams{}, relay.Handlers()); err != nil {
		t.Fatal(err)
	}

	want := []event.TraversalEvent{{
		Collection: "g",
		Type:       "error",
		Error:      "velesdb: STREAM_ERROR: start node not found",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("published mismatch (-want +got):\n%s", diff)
	}
	if streamErr == nil {
		t.Fatal("want error forwarded")
	}
}

func TestRegisterMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	event.MustRegisterMetrics(registry)
}

type shutdowner interface {
	Shutdown(context.Context) error
}

func shutdown(t *testing.T, s shutdowner) {
	t.Helper()
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("shutting down: %v", err)
	}
}

func newTopicURL(t *testing.T) string {
	return "mem://" + strings.ReplaceAll(t.Name(), "/", "_")
}

func openSubscription(t *testing.T, url string) *pubsub.Subscription {
	t.Helper()
	// mem subscriptions need the topic opened first and only get messages sent afterwards.
	subscription, err := pubsub.OpenSubscription(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { shutdown(t, subscription) })
	return subscription
}

func receive[T any](t *testing.T, subscription *pubsub.Subscription) event.Body[T] {
	t.Helper()

	msg, err := subscription.Receive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	msg.Ack()

	var body event.Body[T]
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		t.Fatal(err)
	}
	return body
}
