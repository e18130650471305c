package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIMetrics carries every counter and histogram the query service exposes.
// A dedicated registry keeps the /metrics endpoint free of the default Go
// collectors' duplicates when binaries share a process in tests.
type APIMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queriesTotal          *prometheus.CounterVec
	queryDuration         *prometheus.HistogramVec
	stageCandidates       *prometheus.HistogramVec
	authzChecksTotal      *prometheus.CounterVec
	semanticDegradedTotal prometheus.Counter
	feedbackTotal         *prometheus.CounterVec
	answerConfidence      prometheus.Histogram
}

func NewAPIMetrics(service string) *APIMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragshield",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragshield",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "ragshield",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragshield",
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Total retrieval queries by outcome.",
		},
		[]string{"service", "status"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragshield",
			Subsystem: "retrieval",
			Name:      "query_duration_seconds",
			Help:      "End-to-end retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	stageCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragshield",
			Subsystem: "retrieval",
			Name:      "stage_candidates",
			Help:      "Candidate counts per pipeline stage.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service", "stage"},
	)
	authzChecksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragshield",
			Subsystem: "authz",
			Name:      "checks_total",
			Help:      "Total authorization checks by outcome.",
		},
		[]string{"service", "outcome"},
	)
	semanticDegradedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "ragshield",
			Subsystem:   "retrieval",
			Name:        "semantic_degraded_total",
			Help:        "Total queries served lexical-only because the semantic path failed.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	feedbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragshield",
			Subsystem: "feedback",
			Name:      "submissions_total",
			Help:      "Total feedback submissions by outcome.",
		},
		[]string{"service", "status"},
	)
	answerConfidence := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "ragshield",
			Subsystem:   "retrieval",
			Name:        "answer_confidence",
			Help:        "Distribution of generated answer confidence.",
			Buckets:     []float64{0, 0.1, 0.25, 0.5, 0.7, 0.85, 0.95, 1},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		queryDuration,
		stageCandidates,
		authzChecksTotal,
		semanticDegradedTotal,
		feedbackTotal,
		answerConfidence,
	)

	return &APIMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		queriesTotal:          queriesTotal,
		queryDuration:         queryDuration,
		stageCandidates:       stageCandidates,
		authzChecksTotal:      authzChecksTotal,
		semanticDegradedTotal: semanticDegradedTotal,
		feedbackTotal:         feedbackTotal,
		answerConfidence:      answerConfidence,
	}
}

func (m *APIMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *APIMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(service, r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/conversations/"):
		return "/v1/conversations/{session_id}"
	default:
		return path
	}
}

func (m *APIMetrics) RecordQuery(service, status string, duration time.Duration) {
	m.queriesTotal.WithLabelValues(service, status).Inc()
	m.queryDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *APIMetrics) RecordStageCandidates(service, stage string, count int) {
	m.stageCandidates.WithLabelValues(service, stage).Observe(float64(count))
}

func (m *APIMetrics) RecordAuthzCheck(service, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.authzChecksTotal.WithLabelValues(service, outcome).Inc()
}

func (m *APIMetrics) RecordSemanticDegraded() {
	m.semanticDegradedTotal.Inc()
}

func (m *APIMetrics) RecordFeedback(service, status string) {
	m.feedbackTotal.WithLabelValues(service, status).Inc()
}

func (m *APIMetrics) RecordAnswerConfidence(confidence float64) {
	m.answerConfidence.Observe(confidence)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
