package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "courtbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Confirmed bookings by court.",
		},
		[]string{"court_id"},
	)

	eligibilityRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eligibility_rejections_total",
			Help:      "Wizard selections blocked by the eligibility policy.",
		},
		[]string{"reason"},
	)

	persistenceFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_persistence_failures_total",
			Help:      "Confirm attempts the booking store rejected.",
		},
	)

	eventsForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_forwarded_total",
			Help:      "Outgoing events by type and result.",
		},
		[]string{"event_type", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bookingsCreated,
			eligibilityRejections,
			persistenceFailures,
			eventsForwarded,
		)
	})
}

func ObserveHTTP(endpoint, code string, seconds float64) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
	httpDuration.WithLabelValues(endpoint).Observe(seconds)
}

func IncBookingCreated(courtID string) {
	bookingsCreated.WithLabelValues(courtID).Inc()
}

func IncRejection(reason string) {
	eligibilityRejections.WithLabelValues(reason).Inc()
}

func IncPersistenceFailure() {
	persistenceFailures.Inc()
}

// IncEventForwarded matches worker.ResultRecorder.
func IncEventForwarded(eventType, result string) {
	eventsForwarded.WithLabelValues(eventType, result).Inc()
}
