// Package sse decodes Server-Sent Events streams.
//
// Decoding is independent of how the transport fragments the stream: feeding the same
// bytes in one chunk or one byte at a time produces the same events.
package sse

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"strings"
)

type (
	// Event is a single decoded event block.
	Event struct {
		// Type is the "event:" field, "message" when absent.
		Type string
		// Data is the "data:" field. Multiple data lines are joined with "\n".
		Data string
		// ID is the "id:" field, if any.
		ID string
	}

	// Buffer accumulates stream chunks and extracts complete events from its front.
	// Whatever follows the last complete event stays buffered until more data arrives.
	// The zero value is ready to use. A Buffer must not be used concurrently.
	Buffer struct {
		buf []byte
		// scanned is how much of buf is known to hold only complete, non blank lines.
		scanned int
	}

	// Reader pulls chunks from an [io.Reader] through a [Buffer].
	Reader struct {
		r     io.Reader
		buf   Buffer
		chunk []byte
		eof   bool
		err   error
	}
)

// DefaultType is the type of events that have no "event:" field.
const DefaultType = "message"

const chunkSize = 4096

// Write appends a chunk to the buffer.
func (b *Buffer) Write(chunk []byte) {
	b.buf = append(b.buf, chunk...)
}

// Len returns how many bytes are still buffered.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Next extracts the next complete event, the ones terminated by a blank line.
// Blocks holding only comments are consumed and skipped.
// It returns false when no complete event is buffered.
func (b *Buffer) Next() (Event, bool) {
	for {
		block, rest, scanned, ok := cutBlock(b.buf, b.scanned)
		if !ok {
			b.scanned = scanned
			return Event{}, false
		}
		b.buf = rest
		b.scanned = 0
		if ev, ok := parseBlock(block); ok {
			return ev, true
		}
	}
}

// Flush drains the buffer at the end of the stream, returning the complete events left,
// plus a trailing event that was not terminated by a blank line.
func (b *Buffer) Flush() []Event {
	var events []Event
	for {
		ev, ok := b.Next()
		if !ok {
			break
		}
		events = append(events, ev)
	}
	rest := b.buf
	b.Reset()
	if ev, ok := parseBlock(rest); ok {
		events = append(events, ev)
	}
	return events
}

// Reset discards everything buffered.
func (b *Buffer) Reset() {
	b.buf = nil
	b.scanned = 0
}

// NewReader creates a new [Reader] of events from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, chunk: make([]byte, chunkSize)}
}

// All returns a single-use iterator over the events of the stream.
// Iteration stops at the end of the stream or when reading fails, check [Reader.Err] afterwards.
func (r *Reader) All() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			if ev, ok := r.buf.Next(); ok {
				if !yield(ev) {
					return
				}
				continue
			}
			if r.eof || r.err != nil {
				return
			}
			if err := r.fill(); err != nil {
				r.err = err
				r.buf.Reset()
				return
			}
			if r.eof {
				for _, ev := range r.buf.Flush() {
					if !yield(ev) {
						return
					}
				}
				return
			}
		}
	}
}

// Err returns the error that interrupted iteration, nil when the stream ended normally.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) fill() error {
	n, err := r.r.Read(r.chunk)
	r.buf.Write(r.chunk[:n])
	if errors.Is(err, io.EOF) {
		r.eof = true
		return nil
	}
	return err
}

// cutBlock finds the first blank line in buf, starting at the line beginning at from.
// Only lines terminated by '\n' are considered, a trailing '\r' is part of the terminator,
// so "\r\n" split across chunks is handled. Without a blank line, scanned is where the
// search must resume once more data arrives.
func cutBlock(buf []byte, from int) (block, rest []byte, scanned int, ok bool) {
	start := from
	for {
		i := bytes.IndexByte(buf[start:], '\n')
		if i < 0 {
			return nil, buf, start, false
		}
		line := buf[start : start+i]
		next := start + i + 1
		if len(bytes.TrimSuffix(line, []byte{'\r'})) == 0 {
			return buf[:start], buf[next:], 0, true
		}
		start = next
	}
}

func parseBlock(block []byte) (Event, bool) {
	var (
		ev      Event
		data    []string
		hasData bool
		fields  bool
	)
	for _, line := range strings.Split(string(block), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || line[0] == ':' {
			continue
		}
		name, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch name {
		case "event":
			ev.Type = value
			fields = true
		case "data":
			data = append(data, value)
			hasData = true
			fields = true
		case "id":
			ev.ID = value
			fields = true
		}
	}
	if !fields {
		return Event{}, false
	}
	if ev.Type == "" {
		ev.Type = DefaultType
	}
	if hasData {
		ev.Data = strings.Join(data, "\n")
	}
	return ev, true
}
