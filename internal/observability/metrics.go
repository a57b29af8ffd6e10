package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	Logins        *prometheus.CounterVec
	SessionChecks *prometheus.CounterVec
	AccessDenied  *prometheus.CounterVec
	Redirects     *prometheus.CounterVec
	SignupSteps   *prometheus.CounterVec
	AuditDropped  prometheus.Counter
}

// NewMetrics creates a Metrics instance registered on its own registry,
// along with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gym_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gym_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gym_logins_total",
				Help: "Sign-in attempts by outcome",
			},
			[]string{"outcome"},
		),
		SessionChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gym_session_checks_total",
				Help: "Session checks by resulting state",
			},
			[]string{"state"},
		),
		AccessDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gym_access_denied_total",
				Help: "Requests rejected by a permission guard",
			},
			[]string{"route"},
		),
		Redirects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gym_redirects_total",
				Help: "Redirects issued by route protection and guards",
			},
			[]string{"target"},
		),
		SignupSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gym_signup_steps_completed_total",
				Help: "Sign-up wizard steps completed",
			},
			[]string{"step"},
		),
		AuditDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gym_audit_events_dropped_total",
				Help: "Audit events dropped because the buffer was full",
			},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLogin counts a sign-in attempt ("success", "invalid", "error").
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

// RecordSessionCheck counts a session check by the state it settled in.
func (m *Metrics) RecordSessionCheck(state string) {
	if m == nil {
		return
	}
	m.SessionChecks.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordAccessDenied(route string) {
	if m == nil {
		return
	}
	m.AccessDenied.WithLabelValues(route).Inc()
}

func (m *Metrics) RecordRedirect(target string) {
	if m == nil {
		return
	}
	m.Redirects.WithLabelValues(target).Inc()
}

func (m *Metrics) RecordSignupStep(step string) {
	if m == nil {
		return
	}
	m.SignupSteps.WithLabelValues(step).Inc()
}

func (m *Metrics) RecordAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}

// Middleware records request count and latency, labelled by chi route pattern
// so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
