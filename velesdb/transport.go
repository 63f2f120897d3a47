package velesdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/birdie-ai/velesdb-go/slog"
	"github.com/birdie-ai/velesdb-go/tracing"
	"github.com/birdie-ai/velesdb-go/xerrors"
	"github.com/birdie-ai/velesdb-go/xhttp"
)

type (
	// Transport sends requests to a VelesDB server.
	//
	// Request sends body, when not nil, as JSON and returns the raw body of a successful response.
	// Non-success responses must be returned as errors, ideally created with [ResponseError].
	//
	// OpenStream starts a GET request for a Server-Sent Events stream and returns the response
	// whatever its status, the caller owns and must close the body.
	Transport interface {
		Request(ctx context.Context, method, path string, body any) ([]byte, error)
		OpenStream(ctx context.Context, path string) (*StreamResponse, error)
	}

	// StreamResponse is the response of [Transport.OpenStream].
	StreamResponse struct {
		StatusCode int
		// Body is nil when the server sent no body.
		Body io.ReadCloser
	}

	// RequestFunc adapts a function to a [Transport] that can't open streams.
	RequestFunc func(ctx context.Context, method, path string, body any) ([]byte, error)

	// HTTPTransport is the [Transport] talking HTTP to a VelesDB server.
	// Requests are retried with [xhttp.NewRetrierClient].
	HTTPTransport struct {
		baseURL string
		apiKey  string
		client  xhttp.Client
		stream  xhttp.Client
	}

	// TransportOption configures an [HTTPTransport].
	TransportOption func(*transportConfig)

	transportConfig struct {
		apiKey         string
		httpClient     xhttp.Client
		requestTimeout time.Duration
		retrier        []xhttp.RetrierOption
	}
)

// Request calls f.
func (f RequestFunc) Request(ctx context.Context, method, path string, body any) ([]byte, error) {
	return f(ctx, method, path, body)
}

// OpenStream always fails, functions can't stream.
func (f RequestFunc) OpenStream(context.Context, string) (*StreamResponse, error) {
	return nil, &Error{Code: CodeStreamError, Message: "transport does not support streaming"}
}

// WithAPIKey authenticates every request with the given key as a bearer token.
func WithAPIKey(key string) TransportOption {
	return func(c *transportConfig) {
		c.apiKey = key
	}
}

// WithHTTPClient configures the client used to send requests, defaults to [http.DefaultClient].
// The client is wrapped with the retrier.
func WithHTTPClient(client xhttp.Client) TransportOption {
	return func(c *transportConfig) {
		c.httpClient = client
	}
}

// WithRequestTimeout configures a timeout for each attempt of non-streaming requests.
func WithRequestTimeout(timeout time.Duration) TransportOption {
	return func(c *transportConfig) {
		c.requestTimeout = timeout
	}
}

// WithRetrierOptions configures the retrier wrapping the HTTP client.
func WithRetrierOptions(opts ...xhttp.RetrierOption) TransportOption {
	return func(c *transportConfig) {
		c.retrier = append(c.retrier, opts...)
	}
}

// NewHTTPTransport creates an [HTTPTransport] for the server at baseURL, like "http://localhost:8080".
func NewHTTPTransport(baseURL string, opts ...TransportOption) (*HTTPTransport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("velesdb: parsing base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("velesdb: base URL %q: want http or https scheme", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("velesdb: base URL %q: missing host", baseURL)
	}

	cfg := transportConfig{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(&cfg)
	}

	streamOpts := append([]xhttp.RetrierOption{xhttp.RetrierWithOnRequestDone(sampleHTTPRequest)}, cfg.retrier...)
	requestOpts := slices.Clip(streamOpts)
	if cfg.requestTimeout > 0 {
		requestOpts = append(requestOpts, xhttp.RetrierWithRequestTimeout(cfg.requestTimeout))
	}
	return &HTTPTransport{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		apiKey:  cfg.apiKey,
		client:  xhttp.NewRetrierClient(cfg.httpClient, requestOpts...),
		// Streams are long lived, a per attempt timeout would cut them.
		stream: xhttp.NewRetrierClient(cfg.httpClient, streamOpts...),
	}, nil
}

// Request sends a request with body encoded as JSON and returns the body of a successful response.
// Non-success responses are returned as [*Error] (tagged with [ErrNotFound] for 404) and
// network failures are tagged with [ErrConnection].
func (t *HTTPTransport) Request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("velesdb: encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := t.newRequest(ctx, method, path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := t.client.Do(req)
	if err != nil {
		return nil, xerrors.Tag(err, ErrConnection)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, xerrors.Tag(fmt.Errorf("velesdb: reading response body: %w", err), ErrConnection)
	}

	slog.FromCtx(ctx).Debug("velesdb: request done", "http_request", map[string]any{
		"method":        method,
		"url":           req.URL.String(),
		"status_code":   res.StatusCode,
		"response_size": len(data),
		"elapsed":       time.Since(start).String(),
	})

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, ResponseError(res.StatusCode, data)
	}
	return data, nil
}

// OpenStream starts a Server-Sent Events request. Statuses are not checked, the caller handles them.
func (t *HTTPTransport) OpenStream(ctx context.Context, path string) (*StreamResponse, error) {
	req, err := t.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	res, err := t.stream.Do(req)
	if err != nil {
		return nil, xerrors.Tag(err, ErrConnection)
	}
	body := res.Body
	if res.ContentLength == 0 && res.Header.Get("Content-Length") == "0" {
		_ = body.Close()
		body = nil
	}
	return &StreamResponse{StatusCode: res.StatusCode, Body: body}, nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, errors.New("velesdb: request path must start with /")
	}
	req, err := xhttp.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("velesdb: creating request: %w", err)
	}
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	tracing.SetHeader(req)
	return req, nil
}
