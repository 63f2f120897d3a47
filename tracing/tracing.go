// Package tracing correlates client logs with server requests through a trace ID
// carried on contexts and sent as a W3C Trace Context "traceparent" header.
package tracing

import (
	"context"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/birdie-ai/velesdb-go/slog"
	"github.com/google/uuid"
)

// Header is the HTTP header carrying the trace ID.
const Header = "traceparent"

const traceparentVersion = "00"

// InstrumentHTTP instruments h by adding a slog.Logger with a `trace_id` on the request context.
// The trace ID is the trace-id of the request traceparent, or the raw header value when it
// isn't a valid traceparent. A new one is generated when the header is absent.
// Use slog.FromCtx(ctx) to retrieve the logger.
func InstrumentHTTP(h http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		traceID := req.Header.Get(Header)
		if id, ok := ParseTraceparent(traceID); ok {
			traceID = id
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := CtxWithTraceID(req.Context(), traceID)
		ctx = slog.NewContext(ctx, slog.FromCtx(ctx).With("trace_id", traceID))
		h.ServeHTTP(res, req.WithContext(ctx))
	})
}

// EnsureTraceID returns ctx with a trace ID, generating a new one when ctx has none.
// The returned context carries a logger with the `trace_id` attribute.
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if traceID, ok := CtxGetTraceID(ctx); ok {
		return ctx, traceID
	}
	traceID := uuid.NewString()
	ctx = CtxWithTraceID(ctx, traceID)
	return slog.NewContext(ctx, slog.FromCtx(ctx).With("trace_id", traceID)), traceID
}

// SetHeader sets the [Header] of req to a [Traceparent] for the trace ID of the request context, if any.
func SetHeader(req *http.Request) {
	if traceID, ok := CtxGetTraceID(req.Context()); ok {
		req.Header.Set(Header, Traceparent(traceID))
	}
}

// Traceparent formats a W3C traceparent value for traceID with a new random parent ID and the
// sampled flag. UUIDs, dashed or not, become the 32 hex digits trace-id; any other ID is hashed
// into one, so the same ID always gives the same trace-id.
func Traceparent(traceID string) string {
	parentID := uuid.New()
	return traceparentVersion + "-" + w3cTraceID(traceID) + "-" + hex.EncodeToString(parentID[:8]) + "-01"
}

// ParseTraceparent returns the trace-id of a W3C traceparent value.
func ParseTraceparent(value string) (string, bool) {
	parts := strings.Split(value, "-")
	if len(parts) < 4 || len(parts[0]) != 2 || !isHex(parts[0]) || parts[0] == "ff" {
		return "", false
	}
	traceID, parentID := parts[1], parts[2]
	if len(traceID) != 32 || !isHex(traceID) || isZeros(traceID) {
		return "", false
	}
	if len(parentID) != 16 || !isHex(parentID) || isZeros(parentID) {
		return "", false
	}
	return traceID, true
}

func w3cTraceID(traceID string) string {
	if id, err := uuid.Parse(traceID); err == nil && id != uuid.Nil {
		return hex.EncodeToString(id[:])
	}
	if id, ok := ParseTraceparent(traceID); ok {
		return id
	}
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(traceID))
	return hex.EncodeToString(id[:])
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func isZeros(s string) bool {
	return strings.Trim(s, "0") == ""
}

// CtxWithTraceID creates a new [context.Context] with the given trace ID associated with it.
// Call [CtxGetTraceID] to retrieve the trace ID.
func CtxWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// CtxGetTraceID gets the trace ID associated with this context.
// Return the trace ID and true if there is a trace ID, empty and false otherwise.
func CtxGetTraceID(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(traceIDKey).(string)
	return traceID, ok && traceID != ""
}

type key int

const (
	traceIDKey key = iota
)
