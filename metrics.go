package roleadmin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for role administration.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	resolutionErrors *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// NewMetrics creates a registry with the role administration metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roleadmin_mutations_total",
		Help: "Role mutations by operation and outcome.",
	}, []string{"operation", "outcome"})
	mutationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roleadmin_mutation_duration_seconds",
		Help:    "Duration of role mutations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	resolutionErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roleadmin_resolution_errors_total",
		Help: "Permission resolutions that failed because of stored data corruption.",
	}, []string{"kind"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roleadmin_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roleadmin_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	registry.MustRegister(mutations, mutationDuration, resolutionErrors, requests, duration)

	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		mutations:        mutations,
		mutationDuration: mutationDuration,
		resolutionErrors: resolutionErrors,
		requestsTotal:    requests,
		requestDuration:  duration,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Middleware records request counts and durations per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) observeMutation(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(operation, outcome(err)).Inc()
	m.mutationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) observeResolutionError(err error) {
	if m == nil {
		return
	}
	kind := "other"
	switch {
	case IsCircularInheritance(err):
		kind = "circular_inheritance"
	case IsDanglingParent(err):
		kind = "dangling_parent"
	}
	m.resolutionErrors.WithLabelValues(kind).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsValidationError(err), IsNotFound(err):
		return "rejected"
	default:
		return "error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
