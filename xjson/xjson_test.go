package xjson_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/birdie-ai/velesdb-go/xjson"
	"github.com/google/go-cmp/cmp"
)

type query struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params"`
}

func TestUnmarshal(t *testing.T) {
	const example = `{"query": "SELECT * FROM docs", "params": {"limit": 10}}`

	v, err := xjson.Unmarshal[query](strings.NewReader(example))
	if err != nil {
		t.Fatal(err)
	}
	want := query{Query: "SELECT * FROM docs", Params: map[string]any{"limit": float64(10)}}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestDecodeError(t *testing.T) {
	type testcase struct {
		name     string
		data     string
		wantData string
	}

	long := `{"query": "` + strings.Repeat("x", 1024)

	for _, tc := range []testcase{
		{name: "truncated object", data: `{"query": "test}`, wantData: `{"query": "test}`},
		{name: "not json", data: `<html>Bad Gateway</html>`, wantData: `<html>Bad Gateway</html>`},
		{name: "wrong type", data: `{"query": 1}`, wantData: `{"query": 1}`},
		{name: "long data is truncated", data: long, wantData: long[:512] + "..."},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v, err := xjson.Decode[query]([]byte(tc.data))
			if err == nil {
				t.Fatalf("got value %v; want error", v)
			}
			var errDetails xjson.UnmarshalError
			if !errors.As(err, &errDetails) {
				t.Fatalf("got %T; want xjson.UnmarshalError", err)
			}
			if errDetails.Data != tc.wantData {
				t.Fatalf("got %q; want %q", errDetails.Data, tc.wantData)
			}
		})
	}
}

func TestDecoder(t *testing.T) {
	const jsonlStream = `
{"query": "SELECT * FROM docs"}
{"query": "SELECT COUNT(*) FROM docs"}
{"query": "MATCH (n) RETURN n"}
	`

	dec := xjson.NewDecoder[query](strings.NewReader(jsonlStream))
	var got []string
	for v := range dec.All() {
		got = append(got, v.Query)
	}
	if dec.Error() != nil {
		t.Fatalf("unexpected iteration error: %v", dec.Error())
	}

	want := []string{"SELECT * FROM docs", "SELECT COUNT(*) FROM docs", "MATCH (n) RETURN n"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	for v := range dec.All() {
		t.Fatalf("unexpected re-iteration with val: %v", v)
	}
}

func TestDecoderFailureInterruptStream(t *testing.T) {
	const jsonlStream = `
{"query": "SELECT * FROM docs"}
{"query": "definitely not JSON 1212
{"query": "MATCH (n) RETURN n"}
	`

	dec := xjson.NewDecoder[query](strings.NewReader(jsonlStream))
	i := 0
	for range dec.All() {
		i++
	}
	if i != 1 {
		t.Fatalf("got %d iterations; want 1", i)
	}
	if dec.Error() == nil {
		t.Fatal("want iteration error but got none")
	}
	for v := range dec.All() {
		t.Fatalf("unexpected re-iteration with val: %v", v)
	}
}

func TestDynGet(t *testing.T) {
	o, err := xjson.Decode[xjson.Obj]([]byte(`{"plan": {"strategy": "graph_first", "cost": 2.5}}`))
	if err != nil {
		t.Fatal(err)
	}
	strategy, err := xjson.DynGet[string](o, "plan.strategy")
	if err != nil {
		t.Fatal(err)
	}
	if strategy != "graph_first" {
		t.Fatalf("got %q; want graph_first", strategy)
	}
	if _, err := xjson.DynGet[string](o, "plan.missing"); !errors.Is(err, xjson.ErrNotFound) {
		t.Fatalf("got %v; want %v", err, xjson.ErrNotFound)
	}
}
