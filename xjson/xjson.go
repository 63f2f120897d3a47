// Package xjson extends Go's [json] with generic decoding helpers and dynamic objects.
package xjson

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/birdie-ai/velesdb-go/obj"
)

type (
	// Obj represents a dynamic JSON object.
	// Use [DynGet] to manipulate it more easily.
	Obj = obj.O

	// Decoder specializes the [json.Decoder] for streams of values of the same type,
	// like JSON lines files.
	Decoder[T any] struct {
		d   *json.Decoder
		err error
	}

	// UnmarshalError is returned by [Unmarshal] and [Decode] when the data is not valid JSON for the target type.
	UnmarshalError struct {
		// Err is the error returned by [json.Unmarshal].
		Err error
		// Data is the data that caused the error, useful for debugging.
		Data string
	}
)

var (
	// ErrNotFound indicates that a key was not found while traversing a [Obj].
	ErrNotFound = obj.ErrNotFound

	// ErrInvalidPath indicates that a traversal path is invalid.
	ErrInvalidPath = obj.ErrInvalidPath
)

const maxErrorData = 512

// Decode calls [json.Unmarshal] and returns the unmarshalled value.
// On failure the error is an [UnmarshalError] holding the offending data:
//
//	var errDetails xjson.UnmarshalError
//	if errors.As(err, &errDetails) {
//	    fmt.Println(errDetails.Data)
//	}
func Decode[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, UnmarshalError{err, truncate(data)}
	}
	return v, nil
}

// Unmarshal reads r into memory and calls [Decode].
func Unmarshal[T any](r io.Reader) (T, error) {
	var z T
	data, err := io.ReadAll(r)
	if err != nil {
		return z, fmt.Errorf("reading stream: %w", err)
	}
	return Decode[T](data)
}

// NewDecoder creates a new decoder for type T.
func NewDecoder[T any](r io.Reader) *Decoder[T] {
	return &Decoder[T]{json.NewDecoder(r), nil}
}

// All returns a single-use iterator for the stream.
func (d *Decoder[T]) All() iter.Seq[T] {
	return func(yield func(v T) bool) {
		for d.err == nil && d.d.More() {
			var v T
			if err := d.d.Decode(&v); err != nil {
				d.err = err
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Error returns the error that interrupted iteration or nil if no error happened.
func (d *Decoder[T]) Error() error {
	return d.err
}

func (e UnmarshalError) Error() string {
	return e.Err.Error()
}

func (e UnmarshalError) Unwrap() error {
	return e.Err
}

// DynGet traverses o using the dot separated path and returns the value of type T found there.
// See [obj.Get] for the path syntax.
func DynGet[T any](o Obj, path string) (T, error) {
	return obj.Get[T](o, path)
}

func truncate(data []byte) string {
	if len(data) <= maxErrorData {
		return string(data)
	}
	return string(data[:maxErrorData]) + "..."
}
