// Package metrics exposes Prometheus collectors for the auth flows, the token
// store and the HTTP transport. Every method is safe on a nil *Metrics so
// components can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	loginTotal    *prometheus.CounterVec
	refreshTotal  *prometheus.CounterVec
	logoutTotal   *prometheus.CounterVec
	degradedLoads *prometheus.CounterVec
	sweptTotal    prometheus.Counter

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		loginTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		refreshTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_refresh_total",
			Help: "Refresh attempts by outcome (rotated, invalid, replayed, error)",
		}, []string{"outcome"}),
		logoutTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logout_total",
			Help: "Logout calls by result",
		}, []string{"result"}),
		degradedLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "token_store_degraded_loads_total",
			Help: "Token store loads that fell back to an empty store",
		}, []string{"backend"}),
		sweptTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "token_store_swept_total",
			Help: "Expired refresh token records removed by sweeps",
		}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "endpoint"}),
		httpRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) LoginAttempt(result string) {
	if m == nil {
		return
	}
	m.loginTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RefreshOutcome(outcome string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Logout(result string) {
	if m == nil {
		return
	}
	m.logoutTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) DegradedLoad(backend string) {
	if m == nil {
		return
	}
	m.degradedLoads.WithLabelValues(backend).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptTotal.Add(float64(n))
}

// RequestStarted bumps the in-flight gauge; call the returned func when the
// request completes.
func (m *Metrics) RequestStarted() func(method, endpoint string, status int) {
	if m == nil {
		return func(string, string, int) {}
	}
	start := time.Now()
	m.httpRequestsInFlight.Inc()
	return func(method, endpoint string, status int) {
		m.httpRequestsInFlight.Dec()
		m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}
