package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	auditFacts      *prometheus.CounterVec
	authzDenied     *prometheus.CounterVec
	logins          *prometheus.CounterVec
}

// NewMetrics initialises a private registry with HTTP and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoservis_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autoservis_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	audit := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoservis_audit_facts_total",
		Help: "Committed audit facts by table and action.",
	}, []string{"table", "action"})
	denied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoservis_authz_denied_total",
		Help: "Requests rejected by capability or override checks.",
	}, []string{"check"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "autoservis_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, audit, denied, logins,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		auditFacts:      audit,
		authzDenied:     denied,
		logins:          logins,
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

// Middleware records request count and latency per route pattern.
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

// AuditRecorded counts a committed audit fact.
func (m *Metrics) AuditRecorded(table, action string) {
	if m == nil {
		return
	}
	m.auditFacts.WithLabelValues(table, action).Inc()
}

// AuthzDenied counts a rejected authorization check.
func (m *Metrics) AuthzDenied(check string) {
	if m == nil {
		return
	}
	m.authzDenied.WithLabelValues(check).Inc()
}

// LoginAttempt counts a login by outcome ("success" or "rejected").
func (m *Metrics) LoginAttempt(ok bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if ok {
		outcome = "success"
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
