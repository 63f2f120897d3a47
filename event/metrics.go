package event

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var publishLabels = []string{"name", "status"}

var (
	publishBodySize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "event_publish_msg_body_size_bytes",
		Help: "Size in bytes of the body of published messages",
		// Up to the 10MiB Pub/Sub message limit.
		Buckets: prometheus.ExponentialBucketsRange(64, 10<<20, 30),
	}, publishLabels)

	publishSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "event_publish_duration_seconds",
		Help:    "Time taken to publish a message, until the broker acknowledged it",
		Buckets: prometheus.ExponentialBucketsRange(0.001, 30, 18),
	}, publishLabels)

	publishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_publish_total",
		Help: "Published messages",
	}, publishLabels)

	relayTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_traversal_relay_total",
		Help: "Traversal stream events relayed to a publisher",
	}, []string{"type", "status"})
)

// MustRegisterMetrics registers the publishing and relay metrics on registry.
// It panics when called twice for the same registry.
func MustRegisterMetrics(registry prometheus.Registerer) {
	registry.MustRegister(publishBodySize, publishSeconds, publishTotal, relayTotal)
}

func samplePublish(name string, elapsed time.Duration, bodySize int, err error) {
	labels := []string{name, status(err)}
	publishBodySize.WithLabelValues(labels...).Observe(float64(bodySize))
	publishSeconds.WithLabelValues(labels...).Observe(elapsed.Seconds())
	publishTotal.WithLabelValues(labels...).Inc()
}

func sampleRelay(eventType string, err error) {
	relayTotal.WithLabelValues(eventType, status(err)).Inc()
}

func status(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
