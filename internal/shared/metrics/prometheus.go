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

	// Business metrics
	vitalsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_ingested_total",
			Help: "Total number of vital records ingested",
		},
		[]string{"source"},
	)

	vitalsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_rejected_total",
			Help: "Total number of raw readings rejected by the normalizer",
		},
		[]string{"reason"},
	)

	classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_classifications_total",
			Help: "Total number of risk classifications",
		},
		[]string{"tier", "risk_level"},
	)

	remoteAnalysisFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remote_analysis_failures_total",
			Help: "Total number of remote analysis calls that fell back to the rule engine",
		},
	)

	notificationsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_generated_total",
			Help: "Total number of health notifications generated",
		},
		[]string{"type", "severity"},
	)

	syncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_queue_depth",
			Help: "Number of entries waiting in the offline sync queue",
		},
	)

	syncQueueReplays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_queue_replays_total",
			Help: "Total number of sync queue replay attempts",
		},
		[]string{"result"},
	)

	monitorTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_ticks_total",
			Help: "Total number of admin monitoring poll ticks",
		},
		[]string{"result"},
	)

	emergenciesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "emergencies_active",
			Help: "Number of patients with an unresolved emergency flag",
		},
	)

	escalationSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalation_steps_total",
			Help: "Total number of emergency escalation step attempts",
		},
		[]string{"step", "result"},
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

// RecordVitalsIngested records an accepted vital record
func RecordVitalsIngested(source string) {
	vitalsIngested.WithLabelValues(source).Inc()
}

// RecordVitalsRejected records a rejected raw reading
func RecordVitalsRejected(reason string) {
	vitalsRejected.WithLabelValues(reason).Inc()
}

// RecordClassification records a completed risk classification
func RecordClassification(tier, riskLevel string) {
	classifications.WithLabelValues(tier, riskLevel).Inc()
}

// RecordRemoteAnalysisFailure records a remote tier fallback
func RecordRemoteAnalysisFailure() {
	remoteAnalysisFailures.Inc()
}

// RecordNotification records a generated notification
func RecordNotification(notifType, severity string) {
	notificationsGenerated.WithLabelValues(notifType, severity).Inc()
}

// RecordQueueDepth records the current sync queue depth
func RecordQueueDepth(depth int) {
	syncQueueDepth.Set(float64(depth))
}

// RecordQueueReplay records a sync queue replay attempt
func RecordQueueReplay(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	syncQueueReplays.WithLabelValues(result).Inc()
}

// RecordMonitorTick records a monitoring poll tick
func RecordMonitorTick(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	monitorTicks.WithLabelValues(result).Inc()
}

// RecordActiveEmergencies records the number of latched emergencies
func RecordActiveEmergencies(count int) {
	emergenciesActive.Set(float64(count))
}

// RecordEscalationStep records an escalation step attempt
func RecordEscalationStep(step string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	escalationSteps.WithLabelValues(step, result).Inc()
}
