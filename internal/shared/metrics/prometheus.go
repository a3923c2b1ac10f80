package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Dispatch metrics
	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatches_total",
			Help: "Total number of dispatch attempts",
		},
		[]string{"channel", "event_code", "outcome"},
	)

	pendingCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_pending_created_total",
			Help: "Total number of messages queued for manual approval",
		},
	)

	providerSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_provider_send_duration_seconds",
			Help:    "Delivery provider call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	messagesLogged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_messages_logged_total",
			Help: "Total number of completed sends recorded in the message log",
		},
		[]string{"channel", "event_code"},
	)

	remindersPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_reminders_published_total",
			Help: "Total number of appointment reminder events published",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordDispatch records a dispatch attempt and its outcome. Outcome is
// "sent", "pending" or the error kind.
func RecordDispatch(channel, eventCode, outcome string) {
	dispatchesTotal.WithLabelValues(channel, eventCode, outcome).Inc()
}

// RecordPendingCreated records a message queued for manual approval
func RecordPendingCreated() {
	pendingCreated.Inc()
}

// RecordProviderSend records a delivery provider call duration
func RecordProviderSend(channel string, duration time.Duration) {
	providerSendDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordMessageLogged records a completed send written to the message log
func RecordMessageLogged(channel, eventCode string) {
	messagesLogged.WithLabelValues(channel, eventCode).Inc()
}

// RecordReminderPublished records a published appointment reminder event
func RecordReminderPublished() {
	remindersPublished.Inc()
}
