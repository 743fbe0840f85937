// Package metrics exposes Prometheus instrumentation for the screening
// pipeline and the results API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	propagationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "caproto_propagation_duration_seconds",
			Help:    "Wall time of one propagation batch over the full grid.",
			Buckets: prometheus.DefBuckets,
		},
	)

	propagationObjects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caproto_propagation_objects_total",
			Help: "Objects propagated, by outcome.",
		},
		[]string{"outcome"},
	)

	screeningPairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caproto_screening_pairs_total",
			Help: "Unordered pairs examined by coarse screening.",
		},
	)

	screeningCandidates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "caproto_screening_candidates_total",
			Help: "Pairs that survived the screening threshold.",
		},
	)

	refineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "caproto_refine_duration_seconds",
			Help:    "Wall time of refining one candidate batch.",
			Buckets: prometheus.DefBuckets,
		},
	)

	tleEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "caproto_tle_entries",
			Help: "Element sets loaded for the current run.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caproto_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caproto_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(
		propagationDuration,
		propagationObjects,
		screeningPairs,
		screeningCandidates,
		refineDuration,
		tleEntries,
		httpRequestsTotal,
		httpDurationSeconds,
	)
}

// RecordPropagation records one propagation batch.
func RecordPropagation(d time.Duration, success, failed int) {
	propagationDuration.Observe(d.Seconds())
	propagationObjects.WithLabelValues("success").Add(float64(success))
	propagationObjects.WithLabelValues("error").Add(float64(failed))
}

// RecordScreening records pair and candidate counts for one screening run.
func RecordScreening(pairs, kept int) {
	screeningPairs.Add(float64(pairs))
	screeningCandidates.Add(float64(kept))
}

// RecordRefinement records one candidate batch refinement.
func RecordRefinement(d time.Duration) {
	refineDuration.Observe(d.Seconds())
}

// SetTLEEntryCount publishes the element-set count of the current run.
func SetTLEEntryCount(n int) {
	tleEntries.Set(float64(n))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.URL.Path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(duration)
	})
}
