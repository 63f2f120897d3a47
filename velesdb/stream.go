package velesdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/birdie-ai/velesdb-go/slog"
	"github.com/birdie-ai/velesdb-go/sse"
	"github.com/birdie-ai/velesdb-go/tracing"
	"github.com/birdie-ai/velesdb-go/xerrors"
	"github.com/birdie-ai/velesdb-go/xjson"
)

type (
	// Algorithm is the graph traversal algorithm.
	Algorithm string

	// TraversalParams configures a streamed traversal. Zero values are left for the server to default.
	TraversalParams struct {
		StartNode         uint64
		Algorithm         Algorithm
		MaxDepth          int
		Limit             int
		RelationshipTypes []string
	}

	// NodeEvent is a node reached by the traversal.
	NodeEvent struct {
		ID    uint64   `json:"id"`
		Depth int      `json:"depth"`
		Path  []uint64 `json:"path"`
	}

	// StatsEvent reports the traversal progress.
	StatsEvent struct {
		NodesVisited int     `json:"nodes_visited"`
		ElapsedMs    float64 `json:"elapsed_ms"`
	}

	// DoneEvent ends a successful traversal.
	DoneEvent struct {
		TotalNodes      int     `json:"total_nodes"`
		MaxDepthReached int     `json:"max_depth_reached"`
		ElapsedMs       float64 `json:"elapsed_ms"`
	}

	// StreamHandlers receive the traversal events. Nil handlers are skipped.
	// Handlers are called sequentially from the goroutine that called [Client.StreamTraversal].
	StreamHandlers struct {
		OnNode  func(NodeEvent)
		OnStats func(StatsEvent)
		OnDone  func(DoneEvent)
		// OnError receives events that could not be parsed, which don't stop the stream,
		// and the error ending the stream: an "error" event from the server, or a failure
		// reading the stream like a cancelled context.
		OnError func(error)
	}

	errorEvent struct {
		Error string `json:"error"`
	}

	stream struct {
		handlers StreamHandlers
		log      *slog.Logger
	}
)

// Algorithms
const (
	BFS Algorithm = "bfs"
	DFS Algorithm = "dfs"
)

// StreamTraversal traverses the graph of the collection, dispatching the streamed events to h
// until the server sends a "done" or "error" event, the stream ends or ctx is done.
//
// Failures before the stream starts are returned, no handler is called: a missing collection
// is tagged with [ErrNotFound], other non-success statuses are [*Error] and a response without
// body is an [*Error] with [CodeStreamError]. Once the stream started everything is reported
// to the handlers and the returned error is nil. At most one of OnDone or a terminal OnError is
// called, and nothing is called after it.
func (c *Client) StreamTraversal(ctx context.Context, collection string, params TraversalParams, h StreamHandlers) error {
	ctx, _ = tracing.EnsureTraceID(ctx)
	log := slog.FromCtx(ctx).With("collection", collection, "start_node", params.StartNode)

	res, err := c.transport.OpenStream(ctx, traversalPath(collection, params))
	if err != nil {
		sampleStream("failed")
		return asNotFound(err)
	}
	if err := checkStream(res); err != nil {
		sampleStream("failed")
		log.Debug("velesdb: traversal stream rejected", "error", err)
		return err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Debug("velesdb: closing traversal stream", "error", err)
		}
	}()

	s := stream{handlers: h, log: log}
	s.run(ctx, res.Body)
	return nil
}

func traversalPath(collection string, p TraversalParams) string {
	q := url.Values{}
	q.Set("start_node", strconv.FormatUint(p.StartNode, 10))
	if p.Algorithm != "" {
		q.Set("algorithm", string(p.Algorithm))
	}
	if p.MaxDepth > 0 {
		q.Set("max_depth", strconv.Itoa(p.MaxDepth))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if len(p.RelationshipTypes) > 0 {
		q.Set("relationship_types", strings.Join(p.RelationshipTypes, ","))
	}
	return collectionPath(collection, "graph", "traverse", "stream") + "?" + q.Encode()
}

// checkStream validates the stream response before any event is read, closing the body on failure.
func checkStream(res *StreamResponse) error {
	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		if res.Body == nil || res.Body == http.NoBody {
			return &Error{Code: CodeStreamError, Message: "stream response has no body", Status: res.StatusCode}
		}
		return nil
	}
	var data []byte
	if res.Body != nil {
		data, _ = io.ReadAll(io.LimitReader(res.Body, 64*1024))
		_ = res.Body.Close()
	}
	return ResponseError(res.StatusCode, data)
}

func (s stream) run(ctx context.Context, body io.Reader) {
	r := sse.NewReader(body)
	for ev := range r.All() {
		if ctx.Err() != nil {
			break
		}
		if s.dispatch(ev) {
			return
		}
	}

	err := ctx.Err()
	if err == nil {
		err = r.Err()
	}
	if err == nil {
		sampleStream("eof")
		s.log.Debug("velesdb: traversal stream ended without done event")
		return
	}
	sampleStream("aborted")
	s.log.Debug("velesdb: traversal stream aborted", "error", err)
	s.onError(xerrors.Tag(err, ErrConnection))
}

// dispatch calls the handler of the event, returning true for terminal events.
func (s stream) dispatch(ev sse.Event) bool {
	sampleStreamEvent(ev.Type)

	switch ev.Type {
	case "node":
		if n, ok := decodeEvent[NodeEvent](s, ev); ok && s.handlers.OnNode != nil {
			s.handlers.OnNode(n)
		}
	case "stats":
		if st, ok := decodeEvent[StatsEvent](s, ev); ok && s.handlers.OnStats != nil {
			s.handlers.OnStats(st)
		}
	case "done":
		d, ok := decodeEvent[DoneEvent](s, ev)
		if !ok {
			return false
		}
		sampleStream("done")
		if s.handlers.OnDone != nil {
			s.handlers.OnDone(d)
		}
		return true
	case "error":
		e, ok := decodeEvent[errorEvent](s, ev)
		if !ok {
			return false
		}
		sampleStream("error")
		s.onError(&Error{Code: CodeStreamError, Message: e.Error})
		return true
	default:
		s.log.Debug("velesdb: skipping unknown traversal event", "event_type", ev.Type)
	}
	return false
}

func (s stream) onError(err error) {
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}

// decodeEvent parses the event data, reporting failures to OnError.
func decodeEvent[T any](s stream, ev sse.Event) (T, bool) {
	v, err := xjson.Decode[T]([]byte(ev.Data))
	if err != nil {
		s.log.Debug("velesdb: parsing traversal event", "event_type", ev.Type, "error", err)
		s.onError(&Error{
			Code:    CodeParseError,
			Message: fmt.Sprintf("parsing %q event: %v", ev.Type, err),
			Err:     err,
		})
		return v, false
	}
	return v, true
}
