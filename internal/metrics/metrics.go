package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/star/galcoord/internal/coord"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galcoord_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "galcoord_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	conversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galcoord_conversions_total",
			Help: "Coordinate conversions performed, by source, destination and kind.",
		},
		[]string{"src", "dst", "kind"},
	)

	conversionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galcoord_conversion_errors_total",
			Help: "Failed coordinate conversions, by kind and reason.",
		},
		[]string{"kind", "reason"},
	)

	checkResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galcoord_check_results_total",
			Help: "Consistency check outcomes.",
		},
		[]string{"outcome"},
	)

	trajectoryBatchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "galcoord_trajectory_batch_seconds",
			Help:    "Time to convert one trajectory batch.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(conversionsTotal)
	prometheus.MustRegister(conversionErrorsTotal)
	prometheus.MustRegister(checkResultsTotal)
	prometheus.MustRegister(trajectoryBatchSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Conversion kinds used as the "kind" label.
const (
	KindPos    = "pos"
	KindPosVel = "posvel"
	KindDeriv  = "deriv"
)

// ObserveConversion counts one conversion and, if err is non-nil, its
// failure reason.
func ObserveConversion(src, dst coord.System, kind string, err error) {
	conversionsTotal.WithLabelValues(src.Tag(), dst.Tag(), kind).Inc()
	if err != nil {
		conversionErrorsTotal.WithLabelValues(kind, Reason(err)).Inc()
	}
}

// Reason maps a conversion error onto a small fixed label set.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, coord.ErrSingular):
		return "singular"
	case errors.Is(err, coord.ErrNoConvergence):
		return "no_convergence"
	case errors.Is(err, coord.ErrShapeMismatch), errors.Is(err, coord.ErrSystemMismatch):
		return "mismatch"
	case errors.Is(err, coord.ErrInvalidConfig), errors.Is(err, coord.ErrUnsupported):
		return "invalid"
	}
	return "other"
}

// ObserveCheck counts one consistency check outcome ("pass", "fail",
// "expected").
func ObserveCheck(outcome string) {
	checkResultsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTrajectoryBatch records how long a trajectory batch took.
func ObserveTrajectoryBatch(d time.Duration) {
	trajectoryBatchSeconds.Observe(d.Seconds())
}

// knownRoutes are the paths served by the API. Anything else is collapsed
// into one label to keep scanner traffic from inflating cardinality.
var knownRoutes = map[string]bool{
	"/healthz":           true,
	"/readyz":            true,
	"/metrics":           true,
	"/api/v1/convert":    true,
	"/api/v1/deriv":      true,
	"/api/v1/trajectory": true,
	"/api/v1/check":      true,
	"/api/v1/systems":    true,
}

func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
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
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
