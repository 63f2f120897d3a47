package velesdb

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/birdie-ai/velesdb-go/xerrors"
	"github.com/birdie-ai/velesdb-go/xjson"
)

// Code classifies errors reported by the server or detected by the client.
type Code string

// Codes mapped from HTTP statuses by [CodeForStatus].
const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeUnknown            Code = "UNKNOWN_ERROR"
)

// Codes for failures detected by the client itself.
const (
	// CodeInvalidResponse is used when a response body is not the JSON expected for the endpoint.
	CodeInvalidResponse Code = "INVALID_RESPONSE"
	// CodeStreamError is used for fatal stream conditions and "error" events sent by the server.
	CodeStreamError Code = "STREAM_ERROR"
	// CodeParseError is used for stream events whose data can't be parsed.
	CodeParseError Code = "PARSE_ERROR"
)

var (
	// ErrNotFound tags errors caused by a missing collection or resource, whatever the endpoint.
	ErrNotFound = errors.New("velesdb: not found")

	// ErrConnection tags network failures and timeouts. The tagged error keeps its message and
	// wrapped chain, so errors.Is(err, context.DeadlineExceeded) still works.
	ErrConnection = errors.New("velesdb: connection failure")
)

// Error is a non-success response from the server, or a fatal condition detected by the client.
type Error struct {
	Code    Code
	Message string
	// Status is the HTTP status of the response, zero when the error didn't come from a response.
	Status int
	// Hint is an optional suggestion from the server on how to fix the request.
	Hint string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("velesdb: %s: %s", e.Code, e.Message)
	if e.Hint != "" {
		msg += " (hint: " + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeForStatus maps an HTTP status to its error [Code].
func CodeForStatus(status int) Code {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusInternalServerError:
		return CodeInternalError
	case http.StatusServiceUnavailable:
		return CodeServiceUnavailable
	default:
		return CodeUnknown
	}
}

// errorBody is the error payload sent by the server.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Hint  string `json:"hint"`
}

// ResponseError creates the error for a non-success response with the given status and body.
// The message comes from the JSON error body when there is one, from the status text otherwise.
// Errors for 404 responses are tagged with [ErrNotFound].
func ResponseError(status int, body []byte) error {
	msg := http.StatusText(status)
	var hint string
	if eb, err := xjson.Decode[errorBody](body); err == nil && eb.Error != "" {
		msg = eb.Error
		hint = eb.Hint
	} else if len(body) > 0 && err != nil {
		msg = fmt.Sprintf("%s: %s", msg, truncate(string(body), 256))
	}
	err := &Error{
		Code:    CodeForStatus(status),
		Message: msg,
		Status:  status,
		Hint:    hint,
	}
	if status == http.StatusNotFound {
		return xerrors.Tag(err, ErrNotFound)
	}
	return err
}

// asNotFound tags NOT_FOUND errors coming from any [Transport] with [ErrNotFound].
func asNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var verr *Error
	if errors.As(err, &verr) && (verr.Code == CodeNotFound || verr.Status == http.StatusNotFound) {
		return xerrors.Tag(err, ErrNotFound)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
