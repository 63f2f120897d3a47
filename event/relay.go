package event

import (
	"context"
	"errors"
	"sync"

	"github.com/birdie-ai/velesdb-go/slog"
	"github.com/birdie-ai/velesdb-go/velesdb"
)

type (
	// TraversalEvent is a traversal stream event as published by [Relay].
	// Type is "node", "stats", "done" or "error", only the matching field is set.
	TraversalEvent struct {
		Collection string              `json:"collection"`
		Type       string              `json:"type"`
		Node       *velesdb.NodeEvent  `json:"node,omitempty"`
		Stats      *velesdb.StatsEvent `json:"stats,omitempty"`
		Done       *velesdb.DoneEvent  `json:"done,omitempty"`
		Error      string              `json:"error,omitempty"`
	}

	// Relay publishes the events of a traversal stream, then forwards them to the next handlers.
	// Publish failures don't stop the stream, they are collected and returned by [Relay.Err].
	Relay struct {
		ctx        context.Context
		collection string
		sender     Sender[TraversalEvent]
		next       velesdb.StreamHandlers

		mu   sync.Mutex
		errs []error
	}
)

// TraversalEventName is the name of published traversal events.
const TraversalEventName = "velesdb.traversal"

// NewRelay creates a [Relay] publishing the traversal events of the collection with sender.
// Events are published with ctx, which should be the one given to [velesdb.Client.StreamTraversal].
func NewRelay(ctx context.Context, collection string, sender Sender[TraversalEvent], next velesdb.StreamHandlers) *Relay {
	return &Relay{
		ctx:        ctx,
		collection: collection,
		sender:     sender,
		next:       next,
	}
}

// Handlers returns the stream handlers to give to [velesdb.Client.StreamTraversal].
func (r *Relay) Handlers() velesdb.StreamHandlers {
	return velesdb.StreamHandlers{
		OnNode: func(n velesdb.NodeEvent) {
			r.publish(TraversalEvent{Type: "node", Node: &n})
			if r.next.OnNode != nil {
				r.next.OnNode(n)
			}
		},
		OnStats: func(s velesdb.StatsEvent) {
			r.publish(TraversalEvent{Type: "stats", Stats: &s})
			if r.next.OnStats != nil {
				r.next.OnStats(s)
			}
		},
		OnDone: func(d velesdb.DoneEvent) {
			r.publish(TraversalEvent{Type: "done", Done: &d})
			if r.next.OnDone != nil {
				r.next.OnDone(d)
			}
		},
		OnError: func(err error) {
			r.publish(TraversalEvent{Type: "error", Error: err.Error()})
			if r.next.OnError != nil {
				r.next.OnError(err)
			}
		},
	}
}

// Err returns all publish failures, nil if every event was published.
func (r *Relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

func (r *Relay) publish(ev TraversalEvent) {
	ev.Collection = r.collection
	err := r.sender.Publish(r.ctx, ev)
	sampleRelay(ev.Type, err)
	if err == nil {
		return
	}
	slog.FromCtx(r.ctx).Warn("event: publishing traversal event", "event_type", ev.Type, "error", err)
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}
