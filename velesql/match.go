package velesql

import (
	"slices"
	"strconv"
	"strings"
)

// MatchBuilder builds graph pattern queries:
//
//	MATCH (a:Label)-[:TYPE]->(b:Label) [WHERE ...] RETURN <fields> [ORDER BY ...] [LIMIT n]
//
// Like [SelectBuilder] it is an immutable value.
type MatchBuilder struct {
	steps   []patternStep
	where   conditions
	returns []string
	orderBy []order
	limit   *int
	params  Params
}

// patternStep is either a node or a relationship. Steps alternate, starting with a node.
type patternStep struct {
	rel     bool
	alias   string
	label   string
	minHops int
	maxHops int
}

// NewMatch starts a pattern with a node. Both alias and label are optional.
func NewMatch(alias, label string) MatchBuilder {
	return MatchBuilder{}.node(alias, label)
}

// Rel adds an outgoing relationship of the given type. An empty type matches any relationship.
func (m MatchBuilder) Rel(relType string) MatchBuilder {
	return m.step(patternStep{rel: true, label: relType})
}

// RelHops adds a variable length relationship, "-[:TYPE*min..max]->".
func (m MatchBuilder) RelHops(relType string, minHops, maxHops int) MatchBuilder {
	return m.step(patternStep{rel: true, label: relType, minHops: minHops, maxHops: maxHops})
}

// To adds the node a relationship points to.
// When the pattern ends with a node an untyped relationship is added first.
func (m MatchBuilder) To(alias, label string) MatchBuilder {
	if n := len(m.steps); n > 0 && !m.steps[n-1].rel {
		m = m.Rel("")
	}
	return m.node(alias, label)
}

// Where adds a condition. After the first condition it behaves like [MatchBuilder.AndWhere].
func (m MatchBuilder) Where(clause string, params ...Params) MatchBuilder {
	return m.AndWhere(clause, params...)
}

// AndWhere adds a condition joined with AND.
func (m MatchBuilder) AndWhere(clause string, params ...Params) MatchBuilder {
	m.where = m.where.add(clause, And)
	m.params = m.params.merge(params...)
	return m
}

// OrWhere adds a condition joined with OR. Like [SelectBuilder.OrWhere] it adds no parentheses.
func (m MatchBuilder) OrWhere(clause string, params ...Params) MatchBuilder {
	m.where = m.where.add(clause, Or)
	m.params = m.params.merge(params...)
	return m
}

// Similarity adds "similarity(field, $param) > threshold" to the WHERE clause and binds the vector.
// See [Field], [ParamName] and [Threshold].
func (m MatchBuilder) Similarity(vector []float32, opts ...VectorOption) MatchBuilder {
	o := newVectorOptions(opts)
	return m.AndWhere(similarityClause(o.field, o.param, o.threshold), Params{o.param: slices.Clone(vector)})
}

// NearVector adds a "NEAR($name, topK)" predicate to the WHERE clause and binds name to vector.
func (m MatchBuilder) NearVector(name string, vector []float32, opts ...VectorOption) MatchBuilder {
	o := newVectorOptions(opts)
	return m.AndWhere(nearClause(name, o.topK), Params{name: slices.Clone(vector)})
}

// Return adds projections, usually aliases or dot qualified fields like "a.name".
func (m MatchBuilder) Return(fields ...string) MatchBuilder {
	m.returns = append(slices.Clip(m.returns), fields...)
	return m
}

// OrderBy adds an ORDER BY field.
func (m MatchBuilder) OrderBy(field string, dir Direction) MatchBuilder {
	m.orderBy = append(slices.Clip(m.orderBy), order{field: field, dir: dir})
	return m
}

// OrderBySimilarity orders by "similarity() DESC".
func (m MatchBuilder) OrderBySimilarity() MatchBuilder {
	return m.OrderBy("similarity()", Desc)
}

// Limit sets the LIMIT.
func (m MatchBuilder) Limit(n int) MatchBuilder {
	m.limit = ptr(n)
	return m
}

// Params returns a copy of the parameters bound so far.
func (m MatchBuilder) Params() Params {
	return m.params.merge()
}

// Build assembles the query. When no projection was given all node aliases are returned.
func (m MatchBuilder) Build() (Query, error) {
	if len(m.steps) == 0 {
		return Query{}, &BuildError{Builder: "MATCH", Err: ErrEmptyPattern}
	}
	if m.steps[0].rel {
		return Query{}, &BuildError{Builder: "MATCH", Err: ErrEmptyPattern}
	}
	for i, s := range m.steps {
		// odd steps are relationships, and a relationship must be followed by a node
		if s.rel != (i%2 == 1) || (s.rel && i == len(m.steps)-1) {
			return Query{}, &BuildError{Builder: "MATCH", Err: ErrDanglingRelationship}
		}
	}

	var b strings.Builder
	b.WriteString("MATCH ")
	for _, s := range m.steps {
		s.write(&b)
	}
	m.where.write(&b)
	b.WriteString(" RETURN ")
	b.WriteString(strings.Join(m.projection(), ", "))
	writeOrderBy(&b, m.orderBy)
	writeInt(&b, "LIMIT", m.limit)

	return Query{Text: b.String(), Params: m.Params()}, nil
}

func (m MatchBuilder) node(alias, label string) MatchBuilder {
	return m.step(patternStep{alias: alias, label: label})
}

func (m MatchBuilder) step(s patternStep) MatchBuilder {
	m.steps = append(slices.Clip(m.steps), s)
	return m
}

func (m MatchBuilder) projection() []string {
	if len(m.returns) > 0 {
		return m.returns
	}
	var aliases []string
	for _, s := range m.steps {
		if !s.rel && s.alias != "" && !slices.Contains(aliases, s.alias) {
			aliases = append(aliases, s.alias)
		}
	}
	if len(aliases) == 0 {
		return []string{"*"}
	}
	return aliases
}

func (s patternStep) write(b *strings.Builder) {
	if !s.rel {
		b.WriteByte('(')
		b.WriteString(s.alias)
		if s.label != "" {
			b.WriteByte(':')
			b.WriteString(s.label)
		}
		b.WriteByte(')')
		return
	}
	hops := s.minHops > 0 || s.maxHops > 0
	if s.label == "" && !hops {
		b.WriteString("-->")
		return
	}
	b.WriteString("-[")
	if s.label != "" {
		b.WriteByte(':')
		b.WriteString(s.label)
	}
	if hops {
		b.WriteString("*" + strconv.Itoa(s.minHops) + ".." + strconv.Itoa(s.maxHops))
	}
	b.WriteString("]->")
}
