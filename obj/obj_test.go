package obj_test

import (
	"errors"
	"testing"

	"github.com/birdie-ai/velesdb-go/obj"
	"github.com/birdie-ai/velesdb-go/xjson"
	"github.com/google/go-cmp/cmp"
)

const payload = `
{
	"title"  : "Graph databases",
	"views"  : 1200,
	"draft"  : false,
	"tags"   : ["db", "graph"],
	"author" : {
		"name"    : "Ada",
		"address" : {
			"city" : "Lisbon",
			"geo"  : [38.7, -9.1]
		},
		"with.dot" : {
			"value" : 112
		},
		"a\".b" : {
			"value" : 6
		}
	},
	"doc.title" : "flat projection"
}
`

func TestGet(t *testing.T) {
	o, err := xjson.Decode[obj.O]([]byte(payload))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("top level", func(t *testing.T) {
		assertEqual(t, get[string](t, o, "title"), "Graph databases")
		assertEqual(t, get[float64](t, o, "views"), 1200)
		assertEqual(t, get[bool](t, o, "draft"), false)
		assertEqual(t, get[[]any](t, o, "tags"), []any{"db", "graph"})
	})

	t.Run("nested", func(t *testing.T) {
		assertEqual(t, get[string](t, o, "author.name"), "Ada")
		assertEqual(t, get[string](t, o, "author.address.city"), "Lisbon")
		assertEqual(t, get[[]any](t, o, "author.address.geo"), []any{38.7, -9.1})
	})

	t.Run("quoted keys", func(t *testing.T) {
		assertEqual(t, get[float64](t, o, `author."with.dot".value`), 112)
		assertEqual(t, get[float64](t, o, `author."a\".b".value`), 6)
		assertEqual(t, get[string](t, o, `"doc.title"`), "flat projection")
	})

	t.Run("invalid paths", func(t *testing.T) {
		for _, path := range []string{"", ".", "author.", ".author", ".author."} {
			_, err := obj.Get[string](o, path)
			if !errors.Is(err, obj.ErrInvalidPath) {
				t.Errorf("Get(%q): got %v; want %v", path, err, obj.ErrInvalidPath)
			}
		}
	})

	t.Run("not found", func(t *testing.T) {
		for _, path := range []string{"missing", "author.missing", "missing.name", `author."with.dot".missing`} {
			_, err := obj.Get[string](o, path)
			if !errors.Is(err, obj.ErrNotFound) {
				t.Errorf("Get(%q): got %v; want %v", path, err, obj.ErrNotFound)
			}
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		if v, err := obj.Get[string](o, "author"); err == nil {
			t.Fatalf("want error but got %v", v)
		}
		if v, err := obj.Get[string](o, "title.length"); err == nil {
			t.Fatalf("want error traversing a string but got %v", v)
		}
	})
}

func TestLookup(t *testing.T) {
	o := obj.O{
		"a.name": "flat",
		"a": obj.O{
			"name": "nested",
			"age":  float64(30),
		},
	}

	type testcase struct {
		path   string
		want   any
		wantOK bool
	}

	for _, tc := range []testcase{
		{path: "a.name", want: "flat", wantOK: true},
		{path: "a.age", want: float64(30), wantOK: true},
		{path: "a", want: o["a"], wantOK: true},
		{path: "a.missing"},
		{path: "b.name"},
		{path: ""},
	} {
		got, ok := obj.Lookup(o, tc.path)
		if ok != tc.wantOK {
			t.Errorf("Lookup(%q): got ok %v; want %v", tc.path, ok, tc.wantOK)
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("Lookup(%q): (-want +got):\n%s", tc.path, diff)
		}
	}

	if _, ok := obj.Lookup(nil, "a"); ok {
		t.Error("Lookup on nil object must not find anything")
	}
}

func TestValidatePath(t *testing.T) {
	for _, path := range []string{"", ".", "..", ".name", "name.", ".name."} {
		if obj.IsValidPath(path) {
			t.Errorf("path %q should be invalid", path)
		}
	}
	for _, path := range []string{"name", "a.b", `"a.b"`, `a."b.c".d`} {
		if !obj.IsValidPath(path) {
			t.Errorf("path %q should be valid", path)
		}
	}
}

func get[T any](t *testing.T, o obj.O, path string) T {
	t.Helper()

	v, err := obj.Get[T](o, path)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func assertEqual[T any](t *testing.T, got T, want T) {
	t.Helper()

	if diff := cmp.Diff(got, want); diff != "" {
		t.Fatalf("(-got +want):\n%s", diff)
	}
}
