package velesql

import (
	"strconv"
	"strings"
)

// Classification identifies which of the backend response shapes a query produces.
type Classification int

// Classifications.
// [Classify] never returns RowAggregation since only the response tells a scalar
// aggregate (a bare value) apart from a row aggregate (a keyed object).
const (
	Select Classification = iota
	Match
	ScalarAggregation
	RowAggregation
)

func (c Classification) String() string {
	switch c {
	case Select:
		return "select"
	case Match:
		return "match"
	case ScalarAggregation:
		return "scalar_aggregation"
	case RowAggregation:
		return "row_aggregation"
	default:
		return "Classification(" + strconv.Itoa(int(c)) + ")"
	}
}

var aggFuncs = map[string]struct{}{
	string(Count): {},
	string(Sum):   {},
	string(Avg):   {},
	string(Min):   {},
	string(Max):   {},
}

// Classify inspects query text, hand written or built, and tells how it will be answered:
//   - a leading MATCH is a [Match] query.
//   - an aggregate call (COUNT, SUM, AVG, MIN, MAX) in the projection with no GROUP BY is an aggregation.
//   - anything else is a [Select].
//
// Only the top level of the query is considered: aggregates inside subqueries don't turn
// a query into an aggregation.
func Classify(query string) Classification {
	toks := lex(query)
	if len(toks) == 0 {
		return Select
	}
	if isKeyword(toks[0], "MATCH") {
		return Match
	}

	var (
		depth     int
		inProj    = isKeyword(toks[0], "SELECT")
		aggregate bool
		groupBy   bool
	)
	for i, t := range toks {
		switch {
		case t.kind == tokPunct && t.text == "(":
			depth++
			continue
		case t.kind == tokPunct && t.text == ")":
			depth--
			continue
		}
		if depth != 0 || t.kind != tokIdent {
			continue
		}
		if isKeyword(t, "FROM") {
			inProj = false
		}
		if inProj && isAggCall(toks, i) {
			aggregate = true
		}
		if isKeyword(t, "GROUP") && i+1 < len(toks) && isKeyword(toks[i+1], "BY") {
			groupBy = true
		}
	}
	if aggregate && !groupBy {
		return ScalarAggregation
	}
	return Select
}

// IsAggregation reports whether c is one of the aggregation shapes.
func (c Classification) IsAggregation() bool {
	return c == ScalarAggregation || c == RowAggregation
}

func isAggCall(toks []token, i int) bool {
	if _, ok := aggFuncs[strings.ToUpper(toks[i].text)]; !ok {
		return false
	}
	return i+1 < len(toks) && toks[i+1].kind == tokPunct && toks[i+1].text == "("
}

func isKeyword(t token, kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}
