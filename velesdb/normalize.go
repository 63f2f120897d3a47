package velesdb

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"

	"github.com/birdie-ai/velesdb-go/obj"
	"github.com/birdie-ai/velesdb-go/velesql"
	"github.com/birdie-ai/velesdb-go/xjson"
)

type (
	// Strategy is the execution path a query took on the server.
	Strategy string

	// Result is a single row, aggregation or graph match, whatever endpoint produced it.
	Result struct {
		// NodeID is the point ID of selects and the node bound to the first alias of matches.
		NodeID      uint64
		VectorScore *float64
		GraphScore  *float64
		FusedScore  *float64
		// Bindings holds match aliases bound to node IDs, or the aggregation values.
		Bindings map[string]any
		// ColumnData is the payload of a selected point.
		ColumnData map[string]any
		// Depth is the traversal depth of a match.
		Depth *int
		// Projected holds the RETURN values of a match, keyed like "a.name".
		Projected map[string]any
	}

	// Stats describes how a query was executed.
	Stats struct {
		ExecutionTimeMs float64
		Strategy        Strategy
		// ScannedNodes is nil, neither /query nor the match endpoint reports it yet.
		ScannedNodes *int
	}

	// Response is a normalized query response.
	Response struct {
		Results []Result
		Stats   Stats
		// Classification is how the query was routed, refined to [velesql.RowAggregation]
		// when an aggregation returned an object.
		Classification velesql.Classification
	}
)

// Strategies
const (
	StrategySelect      Strategy = "select"
	StrategyMatch       Strategy = "match"
	StrategyAggregation Strategy = "aggregation"
)

// Field returns the value at the dot separated path, looking in the projection, then the
// column data and then the bindings. Projections can be addressed by their full key, like "a.name".
func (r Result) Field(path string) (any, bool) {
	for _, o := range []obj.O{r.Projected, r.ColumnData, r.Bindings} {
		if v, ok := obj.Lookup(o, path); ok {
			return v, true
		}
	}
	return nil, false
}

// rawObject is a JSON object whose members are decoded on demand with [member].
type rawObject = map[string]json.RawMessage

func strategyFor(class velesql.Classification) Strategy {
	switch class {
	case velesql.Match:
		return StrategyMatch
	case velesql.ScalarAggregation, velesql.RowAggregation:
		return StrategyAggregation
	default:
		return StrategySelect
	}
}

// normalize turns a successful response body into a [Response]. Only a body that is not JSON
// fails: members of an unexpected type are left as zero values, results that are not a list
// give an empty slice and rows that are not objects are skipped.
func normalize(class velesql.Classification, data []byte) (*Response, error) {
	resp := &Response{
		Results:        []Result{},
		Stats:          Stats{Strategy: strategyFor(class)},
		Classification: class,
	}
	if isEmpty(data) {
		return resp, nil
	}
	body, err := xjson.Decode[json.RawMessage](data)
	if err != nil {
		return nil, invalidResponse(err)
	}
	top, _ := object(body)
	switch class {
	case velesql.Match:
		normalizeMatch(resp, top)
	case velesql.ScalarAggregation, velesql.RowAggregation:
		normalizeAggregation(resp, top)
	default:
		normalizeSelect(resp, top)
	}
	return resp, nil
}

func normalizeSelect(resp *Response, top rawObject) {
	resp.Stats.ExecutionTimeMs = member[float64](top, "timing_ms")
	for _, row := range rows(top) {
		resp.Results = append(resp.Results, Result{
			NodeID:      member[uint64](row, "id"),
			VectorScore: member[*float64](row, "score"),
			ColumnData:  member[map[string]any](row, "payload"),
		})
	}
}

func normalizeMatch(resp *Response, top rawObject) {
	resp.Stats.ExecutionTimeMs = member[float64](top, "took_ms")
	for _, row := range rows(top) {
		bindings, nodeID := decodeBindings(member[rawObject](row, "bindings"))
		resp.Results = append(resp.Results, Result{
			NodeID:     nodeID,
			FusedScore: member[*float64](row, "score"),
			Bindings:   bindings,
			Depth:      member[*int](row, "depth"),
			Projected:  member[map[string]any](row, "projected"),
		})
	}
}

func normalizeAggregation(resp *Response, top rawObject) {
	resp.Stats.ExecutionTimeMs = member[float64](top, "timing_ms")
	result := top["result"]
	if isEmpty(result) {
		return
	}
	if row, ok := object(result); ok {
		bindings := make(map[string]any, len(row))
		for k := range row {
			bindings[k] = member[any](row, k)
		}
		resp.Classification = velesql.RowAggregation
		resp.Results = append(resp.Results, Result{Bindings: bindings})
		return
	}
	resp.Results = append(resp.Results, Result{Bindings: map[string]any{"value": member[any](top, "result")}})
}

// member decodes o[name], giving the zero value when it is absent or of another type.
func member[T any](o rawObject, name string) T {
	var v T
	data, ok := o[name]
	if !ok {
		return v
	}
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero
	}
	return v
}

// object decodes data when it is a JSON object.
func object(data json.RawMessage) (rawObject, bool) {
	var o rawObject
	if err := json.Unmarshal(data, &o); err != nil || o == nil {
		return nil, false
	}
	return o, true
}

// rows returns the objects listed under "results".
func rows(top rawObject) []rawObject {
	var objs []rawObject
	for _, data := range member[[]json.RawMessage](top, "results") {
		if o, ok := object(data); ok {
			objs = append(objs, o)
		}
	}
	return objs
}

// decodeBindings keeps node IDs as uint64, so IDs above 2^53 are not rounded.
// It also returns the node bound to the lexically first alias.
func decodeBindings(raw rawObject) (map[string]any, uint64) {
	if raw == nil {
		return nil, 0
	}
	bindings := make(map[string]any, len(raw))
	for alias, v := range raw {
		if id, err := strconv.ParseUint(string(v), 10, 64); err == nil {
			bindings[alias] = id
			continue
		}
		var anyV any
		if err := json.Unmarshal(v, &anyV); err == nil {
			bindings[alias] = anyV
		}
	}
	aliases := make([]string, 0, len(bindings))
	for alias := range bindings {
		aliases = append(aliases, alias)
	}
	slices.Sort(aliases)
	for _, alias := range aliases {
		if id, ok := bindings[alias].(uint64); ok {
			return bindings, id
		}
	}
	return bindings, 0
}

func isEmpty(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}

func invalidResponse(err error) error {
	return &Error{Code: CodeInvalidResponse, Message: "decoding response: " + err.Error(), Err: err}
}
