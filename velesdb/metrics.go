package velesdb

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MustRegisterMetrics registers all client metrics on the given registry.
// It panics if metrics with the same names are already registered.
func MustRegisterMetrics(registry prometheus.Registerer) {
	registry.MustRegister(queryDuration, queryCounter, httpRequestDuration,
		streamEventCounter, streamCounter)
}

func sampleQuery(strategy Strategy, elapsed time.Duration, err error) {
	labels := prometheus.Labels{
		"strategy": string(strategy),
		"status":   errorStatus(err),
	}
	queryDuration.With(labels).Observe(elapsed.Seconds())
	queryCounter.With(labels).Inc()
}

func sampleHTTPRequest(req *http.Request, res *http.Response, err error, elapsed time.Duration) {
	status := "error"
	if err == nil {
		status = strconv.Itoa(res.StatusCode)
	}
	httpRequestDuration.With(prometheus.Labels{
		"method": req.Method,
		"status": status,
	}).Observe(elapsed.Seconds())
}

func sampleStreamEvent(eventType string) {
	switch eventType {
	case "node", "stats", "done", "error":
	default:
		eventType = "unknown"
	}
	streamEventCounter.With(prometheus.Labels{"type": eventType}).Inc()
}

func sampleStream(outcome string) {
	streamCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// errorStatus is the status label of an operation outcome: "ok" or the error code.
func errorStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var verr *Error
	if errors.As(err, &verr) {
		return string(verr.Code)
	}
	if errors.Is(err, ErrConnection) {
		return "connection"
	}
	return "error"
}

var (
	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velesdb_query_duration_seconds",
			Help:    "Duration of VelesQL queries, including retries and normalization",
			Buckets: prometheus.ExponentialBucketsRange(0.001, 30, 20),
		},
		[]string{"strategy", "status"},
	)
	queryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velesdb_query_total",
			Help: "Total of VelesQL queries",
		},
		[]string{"strategy", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velesdb_http_request_duration_seconds",
			Help:    "Duration of each HTTP attempt sent to VelesDB, retries included",
			Buckets: prometheus.ExponentialBucketsRange(0.001, 30, 20),
		},
		[]string{"method", "status"},
	)
	streamEventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velesdb_stream_events_total",
			Help: "Total of traversal stream events received",
		},
		[]string{"type"},
	)
	streamCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velesdb_streams_total",
			Help: "Total of traversal streams by how they ended",
		},
		[]string{"outcome"},
	)
)
