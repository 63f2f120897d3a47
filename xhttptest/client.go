// Package xhttptest provides fakes for testing code built on top of [xhttp.Client].
package xhttptest

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Client allows to fake interactions with an [xhttp.Client].
// It is safe to use the client concurrently.
type Client struct {
	requests  []*http.Request
	responses []response
	mutex     sync.Mutex
}

// NewClient creates a http client for test purposes.
func NewClient() *Client {
	return &Client{}
}

// NewResponse creates a response with the given status and JSON body.
func NewResponse(status int, body string) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// NewStreamResponse creates a Server-Sent Events response whose body delivers each chunk on its own Read.
// The body ends with [io.EOF] after the last chunk.
func NewStreamResponse(status int, chunks ...string) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/event-stream")
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		ContentLength: -1,
		Body:          io.NopCloser(&ChunkReader{Chunks: chunks}),
	}
}

// ChunkReader returns one chunk per Read call, splitting a chunk only when the read buffer is smaller.
// When chunks are exhausted it returns Err, or [io.EOF] if Err is nil.
type ChunkReader struct {
	Chunks []string
	Err    error
}

func (r *ChunkReader) Read(p []byte) (int, error) {
	for len(r.Chunks) > 0 && r.Chunks[0] == "" {
		r.Chunks = r.Chunks[1:]
	}
	if len(r.Chunks) == 0 {
		if r.Err != nil {
			return 0, r.Err
		}
		return 0, io.EOF
	}
	n := copy(p, r.Chunks[0])
	r.Chunks[0] = r.Chunks[0][n:]
	return n, nil
}

// PushResponse will push the given response on the response queue of this [Client].
// Calls to [Client.Do] will use the provided responses and will give an error when no
// response is defined for a request. Pushed responses are handled in a FIFO manner (queue).
func (c *Client) PushResponse(res *http.Response) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.responses = append(c.responses, response{
		res: res,
	})
}

// PushError will push the given error on the response queue of this [Client].
// Errors are enqueued with success responses pushed by [Client.PushResponse].
func (c *Client) PushError(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.responses = append(c.responses, response{
		err: err,
	})
}

// Requests returns all received requests on this client.
// It returns cloned requests, so the caller is guaranteed to not see any changes
// on the underlying requests.
func (c *Client) Requests() []*http.Request {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	clonedReqs := make([]*http.Request, len(c.requests))
	for i, req := range c.requests {
		clonedReqs[i] = req.Clone(req.Context())
	}
	return clonedReqs
}

// Do records requests and sends responses/errors.
// To control responses/error use [Client.PushResponse] and [Client.PushError].
// To check received requests use [Client.Requests].
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.requests = append(c.requests, req)

	if len(c.responses) == 0 {
		return nil, fmt.Errorf("no response configured on xhttptest.Client for request: %s %s", req.Method, req.URL)
	}

	response := c.responses[0]
	c.responses = c.responses[1:]
	if response.res != nil && response.res.Request == nil {
		response.res.Request = req
	}
	return response.res, response.err
}

type response struct {
	res *http.Response
	err error
}
