package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Common HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Domain metrics for the security core.
var (
	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by outcome.",
		},
		[]string{"decision"},
	)

	codesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_codes_issued_total",
			Help: "Verification codes issued by purpose.",
		},
		[]string{"purpose"},
	)

	codeValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_code_validations_total",
			Help: "Verification code validation attempts by purpose and result.",
		},
		[]string{"purpose", "result"},
	)

	orderRefAllocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_ref_allocations_total",
			Help: "Order reference allocations by outcome.",
		},
		[]string{"outcome"},
	)

	gatewayTokensSigned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_tokens_signed_total",
			Help: "Payment gateway tokens signed by operation.",
		},
		[]string{"operation"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authzDecisions, codesIssued, codeValidations,
		orderRefAllocations, gatewayTokensSigned,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuthzDecision counts one authorization decision.
func ObserveAuthzDecision(decision string) {
	authzDecisions.WithLabelValues(decision).Inc()
}

// ObserveCodeIssued counts one issued verification code.
func ObserveCodeIssued(purpose string) {
	codesIssued.WithLabelValues(purpose).Inc()
}

// ObserveCodeValidation counts one validation attempt outcome.
func ObserveCodeValidation(purpose, result string) {
	codeValidations.WithLabelValues(purpose, result).Inc()
}

// ObserveOrderRefAllocation counts one allocation outcome ("ok" or "exhausted").
func ObserveOrderRefAllocation(outcome string) {
	orderRefAllocations.WithLabelValues(outcome).Inc()
}

// ObserveTokenSigned counts one signed gateway token.
func ObserveTokenSigned(operation string) {
	gatewayTokensSigned.WithLabelValues(operation).Inc()
}

// CanonicalPath normalizes a request path for use as a metric label so that
// label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	return path
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
