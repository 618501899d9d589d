// Package metrics exposes Prometheus collectors for the widget server.
//
// Collectors are registered on a private registry so several servers (and
// tests) can coexist in one process.
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

// Config holds configuration for the collectors.
type Config struct {
	// Namespace is the prefix for all metrics (default: "bilancio")
	Namespace string
	// SkipPaths are paths that should not be tracked
	SkipPaths []string
	// Buckets defines the histogram buckets for request duration
	Buckets []float64
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Namespace: "bilancio",
		SkipPaths: []string{"/healthz", "/readyz", "/metrics"},
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}
}

// Metrics holds the collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry
	skip     map[string]bool

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	validations  *prometheus.CounterVec
	ruleFailures *prometheus.CounterVec
	chartRenders *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "bilancio"
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.DefBuckets
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		skip:     make(map[string]bool, len(cfg.SkipPaths)),
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"method", "path", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request latency in seconds.",
			Buckets:   cfg.Buckets,
		}, []string{"method", "path"}),
		requestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of requests being served.",
		}),
		validations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "username",
			Name:      "validations_total",
			Help:      "Username validations by outcome.",
		}, []string{"result"}),
		ruleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "username",
			Name:      "rule_failures_total",
			Help:      "Username rule violations by rule name.",
		}, []string{"rule"}),
		chartRenders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "chart",
			Name:      "renders_total",
			Help:      "PNG chart requests by cache outcome.",
		}, []string{"cache"}),
	}
	for _, p := range cfg.SkipPaths {
		m.skip[p] = true
	}
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveValidation records one username validation and the rules it failed.
func (m *Metrics) ObserveValidation(valid bool, failedRules []string) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.validations.WithLabelValues(result).Inc()
	for _, r := range failedRules {
		m.ruleFailures.WithLabelValues(r).Inc()
	}
}

// ObserveChartRender records a PNG request served from cache or freshly drawn.
func (m *Metrics) ObserveChartRender(cached bool) {
	outcome := "miss"
	if cached {
		outcome = "hit"
	}
	m.chartRenders.WithLabelValues(outcome).Inc()
}

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware returns an HTTP middleware that collects request metrics.
// pattern resolves the route label; it should return a bounded set of
// values to keep cardinality low.
func (m *Metrics) Middleware(pattern func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			m.requestsInFlight.Inc()
			defer m.requestsInFlight.Dec()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			path := r.URL.Path
			if pattern != nil {
				if p := pattern(r); p != "" {
					path = p
				}
			}
			m.requestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
