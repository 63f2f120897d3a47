// Package velesdb is a client for VelesDB servers.
//
// A [Client] routes VelesQL queries to the endpoint matching their kind (select, graph match
// or aggregation) and normalizes every response into the same [Result] shape.
// It also consumes graph traversals streamed as Server-Sent Events, see [Client.StreamTraversal].
package velesdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/birdie-ai/velesdb-go/slog"
	"github.com/birdie-ai/velesdb-go/tracing"
	"github.com/birdie-ai/velesdb-go/velesql"
	"github.com/birdie-ai/velesdb-go/xerrgroup"
	"github.com/birdie-ai/velesdb-go/xjson"
)

type (
	// Client sends VelesQL queries through a [Transport]. It is safe for concurrent use.
	Client struct {
		transport        Transport
		batchConcurrency int
	}

	// ClientOption configures a [Client].
	ClientOption func(*Client)

	// QueryOption configures a single query.
	QueryOption func(*queryOptions)

	// Builder is implemented by [velesql.SelectBuilder] and [velesql.MatchBuilder].
	Builder interface {
		Build() (velesql.Query, error)
	}

	queryOptions struct {
		vector    []float32
		threshold *float64
	}

	queryRequest struct {
		Query  string         `json:"query"`
		Params velesql.Params `json:"params"`
	}

	matchRequest struct {
		Query     string         `json:"query"`
		Params    velesql.Params `json:"params"`
		Vector    []float32      `json:"vector,omitempty"`
		Threshold *float64       `json:"threshold,omitempty"`
	}
)

// DefaultBatchConcurrency is the default number of queries of a batch sent concurrently.
const DefaultBatchConcurrency = 4

// New creates a [Client] using the given transport.
func New(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport:        t,
		batchConcurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithBatchConcurrency configures how many queries of [Client.QueryBatch] run at the same time.
// Values below 1 are ignored.
func WithBatchConcurrency(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.batchConcurrency = n
		}
	}
}

// WithVector sends a query vector along with a MATCH query, for similarity scoring.
func WithVector(v []float32) QueryOption {
	return func(o *queryOptions) {
		o.vector = v
	}
}

// WithThreshold sets the minimum similarity, between 0 and 1, of MATCH results.
func WithThreshold(t float64) QueryOption {
	return func(o *queryOptions) {
		o.threshold = &t
	}
}

// Query classifies q and sends it to the matching endpoint:
// MATCH queries go to the collection match endpoint, everything else to the query endpoint.
// The collection is required for MATCH queries, it is only used for logging otherwise.
//
// Errors for missing collections or resources are tagged with [ErrNotFound], other
// non-success responses are [*Error] and network failures are tagged with [ErrConnection].
func (c *Client) Query(ctx context.Context, collection string, q velesql.Query, opts ...QueryOption) (*Response, error) {
	class := velesql.Classify(q.Text)
	strategy := strategyFor(class)

	ctx, _ = tracing.EnsureTraceID(ctx)
	log := slog.FromCtx(ctx).With("collection", collection, "strategy", string(strategy))

	start := time.Now()
	resp, err := c.query(ctx, collection, class, q, opts)
	sampleQuery(strategy, time.Since(start), err)
	if err != nil {
		log.Debug("velesdb: query failed", "error", err)
		return nil, err
	}
	log.Debug("velesdb: query done", "results", len(resp.Results), "execution_time_ms", resp.Stats.ExecutionTimeMs)
	return resp, nil
}

func (c *Client) query(ctx context.Context, collection string, class velesql.Classification, q velesql.Query, opts []QueryOption) (*Response, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	params := q.Params
	if params == nil {
		params = velesql.Params{}
	}

	var (
		data []byte
		err  error
	)
	if class == velesql.Match {
		if collection == "" {
			return nil, &Error{Code: CodeBadRequest, Message: "MATCH queries require a collection"}
		}
		if o.threshold != nil && (*o.threshold < 0 || *o.threshold > 1) {
			return nil, &Error{Code: CodeBadRequest, Message: fmt.Sprintf("threshold must be between 0 and 1, got %v", *o.threshold)}
		}
		data, err = c.transport.Request(ctx, http.MethodPost, collectionPath(collection, "match"), matchRequest{
			Query:     q.Text,
			Params:    params,
			Vector:    o.vector,
			Threshold: o.threshold,
		})
	} else {
		data, err = c.transport.Request(ctx, http.MethodPost, "/query", queryRequest{Query: q.Text, Params: params})
	}
	if err != nil {
		return nil, asNotFound(err)
	}
	return normalize(class, data)
}

// Run builds the query and sends it with [Client.Query].
// Build failures are returned as is, nothing is sent.
func (c *Client) Run(ctx context.Context, collection string, b Builder, opts ...QueryOption) (*Response, error) {
	q, err := b.Build()
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, collection, q, opts...)
}

// QueryBatch sends the queries concurrently, see [WithBatchConcurrency].
// Responses are in the same order as queries. The first failure cancels the remaining queries
// and is returned.
func (c *Client) QueryBatch(ctx context.Context, collection string, queries []velesql.Query, opts ...QueryOption) ([]*Response, error) {
	type indexed struct {
		i    int
		resp *Response
	}

	g, ctx := xerrgroup.WithContext[indexed](ctx)
	g.SetLimit(c.batchConcurrency)
	for i, q := range queries {
		g.Go(func() (indexed, error) {
			resp, err := c.Query(ctx, collection, q, opts...)
			if err != nil {
				return indexed{}, fmt.Errorf("velesdb: batch query %d: %w", i, err)
			}
			return indexed{i, resp}, nil
		})
	}
	vals, err := g.Wait()
	if err != nil {
		return nil, err
	}

	responses := make([]*Response, len(queries))
	for _, v := range vals {
		responses[v.i] = v.resp
	}
	return responses, nil
}

// Explain returns the execution plan of the query without running it.
func (c *Client) Explain(ctx context.Context, q velesql.Query) (xjson.Obj, error) {
	ctx, _ = tracing.EnsureTraceID(ctx)
	params := q.Params
	if params == nil {
		params = velesql.Params{}
	}
	data, err := c.transport.Request(ctx, http.MethodPost, "/query/explain", queryRequest{Query: q.Text, Params: params})
	if err != nil {
		return nil, asNotFound(err)
	}
	plan, err := xjson.Decode[xjson.Obj](data)
	if err != nil {
		return nil, invalidResponse(err)
	}
	return plan, nil
}

func collectionPath(collection string, segments ...string) string {
	p := "/collections/" + url.PathEscape(collection)
	for _, s := range segments {
		p += "/" + s
	}
	return p
}

// IsNotFound reports whether err was caused by a missing collection or resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
