package velesql

import (
	"slices"
	"strconv"
	"strings"
)

type (
	condition struct {
		clause    string
		connector Connector
	}

	// conditions are emitted left to right exactly as added, no grouping is ever inferred.
	conditions []condition

	order struct {
		field string
		dir   Direction
	}

	// VectorOption configures vector predicates (NearVector and Similarity).
	VectorOption func(*vectorOptions)

	vectorOptions struct {
		topK      int
		threshold float64
		field     string
		param     string
	}
)

// TopK sets how many neighbours a NEAR predicate asks for. Defaults to 10.
func TopK(k int) VectorOption {
	return func(o *vectorOptions) {
		o.topK = k
	}
}

// Threshold sets the minimum similarity of a similarity predicate. Defaults to 0.
func Threshold(t float64) VectorOption {
	return func(o *vectorOptions) {
		o.threshold = t
	}
}

// Field sets the vector field compared by [MatchBuilder.Similarity]. Defaults to "vector".
func Field(f string) VectorOption {
	return func(o *vectorOptions) {
		o.field = f
	}
}

// ParamName sets the parameter name bound by [MatchBuilder.Similarity]. Defaults to "query_vector".
func ParamName(p string) VectorOption {
	return func(o *vectorOptions) {
		o.param = p
	}
}

func newVectorOptions(opts []VectorOption) vectorOptions {
	o := vectorOptions{
		topK:  10,
		field: "vector",
		param: "query_vector",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// add returns a new list with clause appended. The first condition always has no connector.
func (c conditions) add(clause string, conn Connector) conditions {
	if len(c) == 0 {
		conn = None
	}
	return append(slices.Clip(c), condition{clause: clause, connector: conn})
}

func (c conditions) write(b *strings.Builder) {
	if len(c) == 0 {
		return
	}
	b.WriteString(" WHERE ")
	for i, cond := range c {
		if i > 0 {
			b.WriteByte(' ')
			b.WriteString(string(cond.connector))
			b.WriteByte(' ')
		}
		b.WriteString(cond.clause)
	}
}

func writeOrderBy(b *strings.Builder, orders []order) {
	if len(orders) == 0 {
		return
	}
	b.WriteString(" ORDER BY ")
	for i, o := range orders {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(o.field)
		if o.dir != "" {
			b.WriteByte(' ')
			b.WriteString(string(o.dir))
		}
	}
}

func writeInt(b *strings.Builder, keyword string, v *int) {
	if v == nil {
		return
	}
	b.WriteString(" " + keyword + " ")
	b.WriteString(strconv.Itoa(*v))
}

func nearClause(name string, topK int) string {
	return "NEAR($" + name + ", " + strconv.Itoa(topK) + ")"
}

func similarityClause(field, name string, threshold float64) string {
	return "similarity(" + field + ", $" + name + ") > " + strconv.FormatFloat(threshold, 'g', -1, 64)
}

func ptr[T any](v T) *T {
	return &v
}
