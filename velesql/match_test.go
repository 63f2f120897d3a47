package velesql_test

import (
	"errors"
	"testing"

	"github.com/birdie-ai/velesdb-go/velesql"
	"github.com/google/go-cmp/cmp"
)

func TestMatchBuild(t *testing.T) {
	t.Parallel()

	type testcase struct {
		name    string
		builder velesql.MatchBuilder
		want    velesql.Query
	}

	vec := []float32{0.1, 0.2}

	for _, tc := range []testcase{
		{
			name:    "single node returns its alias",
			builder: velesql.NewMatch("n", "Person"),
			want:    velesql.Query{Text: "MATCH (n:Person) RETURN n", Params: velesql.Params{}},
		},
		{
			name: "relationship with projections",
			builder: velesql.NewMatch("a", "Person").
				Rel("KNOWS").
				To("b", "Person").
				Where("a.age > $age", velesql.Params{"age": 30}).
				Return("a.name", "b.name").
				Limit(5),
			want: velesql.Query{
				Text:   "MATCH (a:Person)-[:KNOWS]->(b:Person) WHERE a.age > $age RETURN a.name, b.name LIMIT 5",
				Params: velesql.Params{"age": 30},
			},
		},
		{
			name: "similarity ordered",
			builder: velesql.NewMatch("product", "Product").
				Rel("SUPPLIED_BY").
				To("supplier", "Supplier").
				Similarity(vec, velesql.Field("product.image_embedding"), velesql.ParamName("photo"), velesql.Threshold(0.7)).
				AndWhere("supplier.trust_score > 4.5").
				OrderBySimilarity().
				Limit(12),
			want: velesql.Query{
				Text: "MATCH (product:Product)-[:SUPPLIED_BY]->(supplier:Supplier) " +
					"WHERE similarity(product.image_embedding, $photo) > 0.7 AND supplier.trust_score > 4.5 " +
					"RETURN product, supplier ORDER BY similarity() DESC LIMIT 12",
				Params: velesql.Params{"photo": vec},
			},
		},
		{
			name:    "similarity defaults",
			builder: velesql.NewMatch("d", "Doc").Similarity(vec),
			want: velesql.Query{
				Text:   "MATCH (d:Doc) WHERE similarity(vector, $query_vector) > 0 RETURN d",
				Params: velesql.Params{"query_vector": vec},
			},
		},
		{
			name: "near vector and or where",
			builder: velesql.NewMatch("d", "Doc").
				NearVector("v", vec, velesql.TopK(3)).
				OrWhere("d.pinned = true"),
			want: velesql.Query{
				Text:   "MATCH (d:Doc) WHERE NEAR($v, 3) OR d.pinned = true RETURN d",
				Params: velesql.Params{"v": vec},
			},
		},
		{
			name: "multi hop and anonymous nodes",
			builder: velesql.NewMatch("user", "User").
				Rel("HAD_CONVERSATION").
				To("", "").
				RelHops("CONTAINS", 1, 3).
				To("msg", "").
				OrderBy("msg.created_at", velesql.Desc),
			want: velesql.Query{
				Text: "MATCH (user:User)-[:HAD_CONVERSATION]->()-[:CONTAINS*1..3]->(msg) " +
					"RETURN user, msg ORDER BY msg.created_at DESC",
				Params: velesql.Params{},
			},
		},
		{
			name:    "to after a node adds an untyped relationship",
			builder: velesql.NewMatch("a", "").To("b", "Doc"),
			want:    velesql.Query{Text: "MATCH (a)-->(b:Doc) RETURN a, b", Params: velesql.Params{}},
		},
		{
			name:    "no aliases returns everything",
			builder: velesql.NewMatch("", "Doc"),
			want:    velesql.Query{Text: "MATCH (:Doc) RETURN *", Params: velesql.Params{}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := tc.builder.Build()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("query mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchBuildErrors(t *testing.T) {
	t.Parallel()

	type testcase struct {
		name    string
		builder velesql.MatchBuilder
		want    error
	}

	for _, tc := range []testcase{
		{
			name:    "empty",
			builder: velesql.MatchBuilder{},
			want:    velesql.ErrEmptyPattern,
		},
		{
			name:    "starts with relationship",
			builder: velesql.MatchBuilder{}.Rel("KNOWS").To("b", ""),
			want:    velesql.ErrEmptyPattern,
		},
		{
			name:    "dangling relationship",
			builder: velesql.NewMatch("a", "").Rel("KNOWS"),
			want:    velesql.ErrDanglingRelationship,
		},
		{
			name:    "consecutive relationships",
			builder: velesql.NewMatch("a", "").Rel("KNOWS").Rel("LIKES").To("b", ""),
			want:    velesql.ErrDanglingRelationship,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			q, err := tc.builder.Build()
			if !errors.Is(err, tc.want) {
				t.Fatalf("got (%v, %v); want error %v", q, err, tc.want)
			}
			var buildErr *velesql.BuildError
			if !errors.As(err, &buildErr) || buildErr.Builder != "MATCH" {
				t.Fatalf("got %#v; want a MATCH *velesql.BuildError", err)
			}
		})
	}
}

func TestMatchImmutability(t *testing.T) {
	t.Parallel()

	base := velesql.NewMatch("a", "Person").Rel("KNOWS").To("b", "").Where("a.age > 1")
	want, err := base.Build()
	if err != nil {
		t.Fatal(err)
	}

	vec := []float32{1}
	derived := []velesql.MatchBuilder{
		base.Rel("LIKES").To("c", ""),
		base.To("c", ""),
		base.RelHops("X", 1, 2).To("d", ""),
		base.Where("b.x = $x", velesql.Params{"x": 1}),
		base.AndWhere("b.y = 1"),
		base.OrWhere("b.z = 1"),
		base.Similarity(vec),
		base.NearVector("v", vec),
		base.Return("a.name"),
		base.OrderBy("a.name", velesql.Asc),
		base.OrderBySimilarity(),
		base.Limit(1),
	}
	for i, d := range derived {
		if _, err := d.Build(); err != nil {
			t.Errorf("derived builder %d: unexpected error: %v", i, err)
		}
		got, err := base.Build()
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("derived builder %d modified the original (-want +got):\n%s", i, diff)
		}
	}
}

func TestMatchParamsUnion(t *testing.T) {
	t.Parallel()

	vec := []float32{1, 2}
	b := velesql.NewMatch("a", "").
		Where("a.x = $x", velesql.Params{"x": 1}).
		OrWhere("a.y = $y", velesql.Params{"y": 2}).
		Similarity(vec, velesql.ParamName("s")).
		NearVector("n", vec)

	want := velesql.Params{"x": 1, "y": 2, "s": vec, "n": vec}
	if diff := cmp.Diff(want, b.Params()); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}
