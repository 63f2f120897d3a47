// Package xhttp provides the HTTP plumbing shared by the VelesDB client: a retrying [Client]
// and request constructors that identify the client to the server.
package xhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/birdie-ai/velesdb-go/slog"
)

type (
	// Client has the same API as [http.Client] so wrappers adding retry (or anything else) can be
	// used as a drop-in replacement.
	// The retrier reads the entire request body in memory in order to replay it.
	Client interface {
		Do(req *http.Request) (*http.Response, error)
	}

	// RetrierOption configures clients created with [NewRetrierClient].
	RetrierOption func(*retrierClient)

	// RetrierOnRequestDoneFunc is called for every attempt made by the retrier, including retries.
	// res and err are what the wrapped [Client.Do] returned and elapsed is how long the attempt took.
	RetrierOnRequestDoneFunc func(req *http.Request, res *http.Response, err error, elapsed time.Duration)

	// RetrierOnRetryFunc is called every time the retrier decides to retry a failed attempt.
	// The callback may read the response body but must not close it.
	RetrierOnRetryFunc func(req *http.Request, res *http.Response, err error)
)

const (
	// DefaultMinSleepPeriod is the default sleep period before the first retry, it doubles on each retry.
	DefaultMinSleepPeriod = 250 * time.Millisecond

	// DefaultMaxSleepPeriod is the default max sleep period between retries.
	DefaultMaxSleepPeriod = 10 * time.Second

	// DefaultMaxAttempts is the default number of attempts made for a single request.
	DefaultMaxAttempts = 5
)

const minRetryAfter = time.Second

// NewRetrierClient wraps c with retry logic.
// Attempts failing with transient network errors or with a retryable status (429, 500, 502, 503, 504 by default)
// are retried with exponential backoff until the max attempts are reached or the request context is done.
// When attempts run out on a retryable status the last response is returned as is, so callers can inspect it.
func NewRetrierClient(c Client, options ...RetrierOption) Client {
	r := &retrierClient{
		client:        c,
		sleep:         defaultSleep,
		minPeriod:     DefaultMinSleepPeriod,
		maxPeriod:     DefaultMaxSleepPeriod,
		maxAttempts:   DefaultMaxAttempts,
		onRequestDone: func(*http.Request, *http.Response, error, time.Duration) {},
		onRetry:       func(*http.Request, *http.Response, error) {},
		retryStatusCodes: map[int]struct{}{
			http.StatusTooManyRequests:     {},
			http.StatusInternalServerError: {},
			http.StatusBadGateway:          {},
			http.StatusServiceUnavailable:  {},
			http.StatusGatewayTimeout:      {},
		},
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// ParseRetryAfter parses a Retry-After header value, either delay seconds or an HTTP date.
// An empty value returns zero values and no error.
func ParseRetryAfter(value string) (time.Duration, time.Time, error) {
	if value == "" {
		return 0, time.Time{}, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, time.Time{}, nil
	}
	if t, err := http.ParseTime(value); err == nil {
		return 0, t, nil
	}
	return 0, time.Time{}, fmt.Errorf("invalid Retry-After header: %q", value)
}

type (
	retrierClient struct {
		client           Client
		requestTimeout   time.Duration
		minPeriod        time.Duration
		maxPeriod        time.Duration
		jitter           time.Duration
		maxAttempts      int
		sleep            func(context.Context, time.Duration)
		retryStatusCodes map[int]struct{}
		onRequestDone    RetrierOnRequestDoneFunc
		onRetry          RetrierOnRetryFunc
	}
	readCloserCanceller struct {
		io.ReadCloser
		cancel context.CancelFunc
	}
)

func (c *readCloserCanceller) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}

func (r *retrierClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		if err := req.Body.Close(); err != nil {
			return nil, fmt.Errorf("closing request body: %w", err)
		}
	}

	ctx := req.Context()
	log := slog.FromCtx(ctx).With("request_method", req.Method, "request_url", req.URL.String())
	period := r.minPeriod

	for attempt := 1; ctx.Err() == nil; attempt++ {
		lastAttempt := r.maxAttempts > 0 && attempt >= r.maxAttempts
		try, cancel := r.newAttempt(ctx, req, body)

		start := time.Now()
		res, err := r.client.Do(try)
		r.onRequestDone(try, res, err, time.Since(start))

		if err != nil {
			cancel()
			if !IsRetryableError(err) || lastAttempt {
				log.Debug("xhttp: request failed", "error", err, "attempt", attempt)
				return nil, err
			}
			log.Debug("xhttp: retrying request failed with error", "error", err, "attempt", attempt,
				"sleep_period", period.String())
			r.onRetry(try, nil, err)
			r.sleep(ctx, r.addJitter(period))
			period = min(period*2, r.maxPeriod)
			continue
		}

		if res.Body == nil {
			res.Body = http.NoBody
		}
		res.Body = &readCloserCanceller{res.Body, cancel}

		if _, retry := r.retryStatusCodes[res.StatusCode]; !retry || lastAttempt {
			return res, nil
		}

		r.onRetry(try, res, nil)
		if err := res.Body.Close(); err != nil {
			log.Debug("xhttp: closing response body before retry", "error", err)
		}
		period = r.retryAfter(log, res, period)
		log.Debug("xhttp: retrying request with error status", "status_code", res.StatusCode, "attempt", attempt,
			"sleep_period", period.String())
		r.sleep(ctx, r.addJitter(period))
		period = min(period*2, r.maxPeriod)
	}

	log.Debug("xhttp: stopping retry, request context done", "error", ctx.Err())
	return nil, ctx.Err()
}

// IsRetryableError reports whether err, returned by an HTTP client, is a transient network failure.
// Most of these have no exported type in net/http, they can only be detected by their messages.
func IsRetryableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "http2: server sent GOAWAY and closed the connection") {
		return true
	}
	for _, suffix := range []string{
		"i/o timeout",
		"read: connection timed out",
		"connect: connection refused",
		"EOF",
		"write: broken pipe",
		"connection reset by peer",
		"server closed idle connection",
		"use of closed network connection",
		"Temporary failure in name resolution",
		"cannot assign requested address",
	} {
		if strings.HasSuffix(msg, suffix) {
			return true
		}
	}
	return false
}

// retryAfter returns the period to sleep honoring the response Retry-After header, if any.
func (r *retrierClient) retryAfter(log *slog.Logger, res *http.Response, period time.Duration) time.Duration {
	delay, at, err := ParseRetryAfter(res.Header.Get("Retry-After"))
	switch {
	case err != nil:
		log.Warn("xhttp: ignoring Retry-After header", "error", err)
	case delay >= minRetryAfter:
		return min(delay, r.maxPeriod)
	case !at.IsZero():
		if d := time.Until(at); d >= minRetryAfter {
			return min(d, r.maxPeriod)
		}
	}
	return period
}

func (r *retrierClient) addJitter(v time.Duration) time.Duration {
	if r.jitter == 0 {
		return v
	}
	return v + time.Duration(rand.Int64N(int64(r.jitter)))
}

func (r *retrierClient) newAttempt(ctx context.Context, req *http.Request, body []byte) (*http.Request, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if r.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.requestTimeout)
	}
	try := req.Clone(ctx)
	if body != nil {
		try.Body = io.NopCloser(bytes.NewReader(body))
		try.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return try, cancel
}

func defaultSleep(ctx context.Context, period time.Duration) {
	t := time.NewTimer(period)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
