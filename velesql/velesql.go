// Package velesql builds VelesQL query text.
//
// Builders are immutable values: every method returns a new builder and leaves the
// receiver untouched, so a partially built query can be shared and extended freely.
// Built queries carry their bound parameters, ready to be sent as a query request body.
package velesql

import (
	"errors"
	"maps"
)

type (
	// Params maps a placeholder name (without the "$") to its bound value.
	// Vector values are plain []float32 slices.
	Params map[string]any

	// Query is the result of building a query: its text and the parameters referenced by it.
	// It marshals to the {"query", "params"} object expected by the query endpoints.
	Query struct {
		Text   string `json:"query"`
		Params Params `json:"params"`
	}

	// Connector joins a condition to the ones before it.
	Connector string

	// Direction is an ORDER BY direction.
	Direction string

	// AggFunc is an aggregate function usable in a projection.
	AggFunc string

	// JoinKind is the kind of a JOIN clause.
	JoinKind string

	// BuildError is returned by Build when a query can't be assembled.
	// It never reaches the network.
	BuildError struct {
		// Builder is the name of the builder that failed ("SELECT" or "MATCH").
		Builder string
		// Err is one of the Err* sentinels of this package.
		Err error
	}
)

// Connectors. The first condition of a WHERE clause never has a connector.
const (
	None Connector = ""
	And  Connector = "AND"
	Or   Connector = "OR"
)

// Directions.
const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Aggregate functions.
const (
	Count AggFunc = "COUNT"
	Sum   AggFunc = "SUM"
	Avg   AggFunc = "AVG"
	Min   AggFunc = "MIN"
	Max   AggFunc = "MAX"
)

// Join kinds.
const (
	InnerJoin JoinKind = "JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
	RightJoin JoinKind = "RIGHT JOIN"
)

// build errors
var (
	ErrMissingCollection    = errors.New("FROM requires a collection")
	ErrEmptyPattern         = errors.New("MATCH requires a pattern")
	ErrDanglingRelationship = errors.New("relationship has no target node")
)

func (e *BuildError) Error() string {
	return "velesql: building " + e.Builder + ": " + e.Err.Error()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Vector64 converts a float64 vector to the []float32 representation used for vector parameters.
func Vector64(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// merge returns a new Params holding p and all others, later names overwriting earlier ones.
// The result is never nil.
func (p Params) merge(others ...Params) Params {
	out := make(Params, len(p))
	maps.Copy(out, p)
	for _, o := range others {
		maps.Copy(out, o)
	}
	return out
}
