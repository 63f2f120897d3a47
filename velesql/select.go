package velesql

import (
	"slices"
	"strings"
)

// SelectBuilder builds row oriented queries:
//
//	SELECT <cols|*> FROM <collection> [JOIN ...] [WHERE ...] [GROUP BY ...] [ORDER BY ...] [LIMIT n] [OFFSET n]
//
// The zero value is ready to use. Methods never modify the receiver.
type SelectBuilder struct {
	columns    []string
	collection string
	where      conditions
	joins      []join
	groupBy    []string
	orderBy    []order
	limit      *int
	offset     *int
	params     Params
}

type join struct {
	table string
	on    string
	kind  JoinKind
}

// NewSelect creates an empty [SelectBuilder].
func NewSelect() SelectBuilder {
	return SelectBuilder{}
}

// Select adds columns to the projection.
func (s SelectBuilder) Select(columns ...string) SelectBuilder {
	s.columns = append(slices.Clip(s.columns), columns...)
	return s
}

// SelectAll resets the projection to "*".
func (s SelectBuilder) SelectAll() SelectBuilder {
	s.columns = nil
	return s
}

// SelectAs adds "expr AS alias" to the projection.
func (s SelectBuilder) SelectAs(expr, alias string) SelectBuilder {
	return s.Select(expr + " AS " + alias)
}

// SelectAgg adds an aggregate call like "COUNT(*)" to the projection, aliased when alias is not empty.
func (s SelectBuilder) SelectAgg(fn AggFunc, field, alias string) SelectBuilder {
	expr := string(fn) + "(" + field + ")"
	if alias == "" {
		return s.Select(expr)
	}
	return s.SelectAs(expr, alias)
}

// From sets the collection being queried.
func (s SelectBuilder) From(collection string) SelectBuilder {
	s.collection = collection
	return s
}

// Where adds a condition. After the first condition it behaves like [SelectBuilder.AndWhere].
func (s SelectBuilder) Where(clause string, params ...Params) SelectBuilder {
	return s.AndWhere(clause, params...)
}

// AndWhere adds a condition joined with AND.
func (s SelectBuilder) AndWhere(clause string, params ...Params) SelectBuilder {
	s.where = s.where.add(clause, And)
	s.params = s.params.merge(params...)
	return s
}

// OrWhere adds a condition joined with OR.
// No parentheses are added: "a AND b OR c" keeps the backend's usual precedence, (a AND b) OR c.
func (s SelectBuilder) OrWhere(clause string, params ...Params) SelectBuilder {
	s.where = s.where.add(clause, Or)
	s.params = s.params.merge(params...)
	return s
}

// NearVector adds a "NEAR($name, topK)" predicate and binds name to vector.
func (s SelectBuilder) NearVector(name string, vector []float32, opts ...VectorOption) SelectBuilder {
	o := newVectorOptions(opts)
	return s.AndWhere(nearClause(name, o.topK), Params{name: slices.Clone(vector)})
}

// Similarity adds a "similarity(field, $name) > threshold" predicate and binds name to vector.
func (s SelectBuilder) Similarity(field, name string, vector []float32, opts ...VectorOption) SelectBuilder {
	o := newVectorOptions(opts)
	return s.AndWhere(similarityClause(field, name, o.threshold), Params{name: slices.Clone(vector)})
}

// Join adds a join with another collection.
func (s SelectBuilder) Join(table, on string, kind JoinKind) SelectBuilder {
	if kind == "" {
		kind = InnerJoin
	}
	s.joins = append(slices.Clip(s.joins), join{table: table, on: on, kind: kind})
	return s
}

// GroupBy adds GROUP BY columns.
func (s SelectBuilder) GroupBy(columns ...string) SelectBuilder {
	s.groupBy = append(slices.Clip(s.groupBy), columns...)
	return s
}

// OrderBy adds an ORDER BY field.
func (s SelectBuilder) OrderBy(field string, dir Direction) SelectBuilder {
	s.orderBy = append(slices.Clip(s.orderBy), order{field: field, dir: dir})
	return s
}

// Limit sets the LIMIT.
func (s SelectBuilder) Limit(n int) SelectBuilder {
	s.limit = ptr(n)
	return s
}

// Offset sets the OFFSET.
func (s SelectBuilder) Offset(n int) SelectBuilder {
	s.offset = ptr(n)
	return s
}

// Params returns a copy of the parameters bound so far.
func (s SelectBuilder) Params() Params {
	return s.params.merge()
}

// Build assembles the query. It fails with a [*BuildError] if no collection was given.
func (s SelectBuilder) Build() (Query, error) {
	if strings.TrimSpace(s.collection) == "" {
		return Query{}, &BuildError{Builder: "SELECT", Err: ErrMissingCollection}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if len(s.columns) == 0 {
		b.WriteByte('*')
	} else {
		b.WriteString(strings.Join(s.columns, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(s.collection)
	for _, j := range s.joins {
		b.WriteString(" " + string(j.kind) + " " + j.table + " ON " + j.on)
	}
	s.where.write(&b)
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(s.groupBy, ", "))
	}
	writeOrderBy(&b, s.orderBy)
	writeInt(&b, "LIMIT", s.limit)
	writeInt(&b, "OFFSET", s.offset)

	return Query{Text: b.String(), Params: s.Params()}, nil
}
