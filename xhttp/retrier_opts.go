package xhttp

import (
	"context"
	"time"
)

// RetrierWithOnRetry configures a callback called before each retry.
// The callback is called from the goroutine that called the retrier Do method.
func RetrierWithOnRetry(f RetrierOnRetryFunc) RetrierOption {
	return func(r *retrierClient) {
		r.onRetry = f
	}
}

// RetrierWithOnRequestDone configures a callback called after every attempt, retries included,
// before the retrier decides what to do with the result.
// The callback is called from the goroutine that called the retrier Do method.
func RetrierWithOnRequestDone(f RetrierOnRequestDoneFunc) RetrierOption {
	return func(r *retrierClient) {
		r.onRequestDone = f
	}
}

// RetrierWithJitter adds a random jitter, up to the given duration, on top of each sleep period.
func RetrierWithJitter(jitter time.Duration) RetrierOption {
	return func(r *retrierClient) {
		r.jitter = jitter
	}
}

// RetrierWithMinSleepPeriod configures the sleep period before the first retry. Defaults to [DefaultMinSleepPeriod].
func RetrierWithMinSleepPeriod(minPeriod time.Duration) RetrierOption {
	return func(r *retrierClient) {
		r.minPeriod = minPeriod
	}
}

// RetrierWithMaxSleepPeriod configures the max period slept between retries. Defaults to [DefaultMaxSleepPeriod].
func RetrierWithMaxSleepPeriod(maxPeriod time.Duration) RetrierOption {
	return func(r *retrierClient) {
		r.maxPeriod = maxPeriod
	}
}

// RetrierWithMaxAttempts configures how many attempts are made for each request. Defaults to [DefaultMaxAttempts].
// Zero or less means retrying until the request context is done.
func RetrierWithMaxAttempts(n int) RetrierOption {
	return func(r *retrierClient) {
		r.maxAttempts = n
	}
}

// RetrierWithSleep configures the function used to sleep between retries, usually for testing.
func RetrierWithSleep(sleep func(context.Context, time.Duration)) RetrierOption {
	return func(r *retrierClient) {
		r.sleep = sleep
	}
}

// RetrierWithRequestTimeout configures a timeout for each attempt. The request context still bounds
// the whole call: attempts that time out are retried until it is done or attempts run out.
// The attempt context is released when the response body is closed, so streaming responses
// must not use this option.
func RetrierWithRequestTimeout(timeout time.Duration) RetrierOption {
	return func(r *retrierClient) {
		r.requestTimeout = timeout
	}
}

// RetrierWithStatuses adds status codes to be retried on top of the defaults.
func RetrierWithStatuses(statuses ...int) RetrierOption {
	return func(r *retrierClient) {
		for _, status := range statuses {
			r.retryStatusCodes[status] = struct{}{}
		}
	}
}
