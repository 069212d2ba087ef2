package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the backend's Prometheus collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	mutations   *prometheus.CounterVec
	rateLimited prometheus.Counter
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a fresh registry, plus the Go and
// process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "till_backend_http_requests_total",
			Help: "HTTP requests by status class.",
		}, []string{"class"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "till_backend_mutations_total",
			Help: "Mutations handled, by verdict.",
		}, []string{"verdict"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "till_backend_rate_limited_total",
			Help: "Requests refused by the per-device rate limit.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "till_backend_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		m.requests, m.mutations, m.rateLimited, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordRequest counts a finished request by status class.
func (m *Metrics) RecordRequest(status int, seconds float64, method string) {
	class := "2xx"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	}
	m.requests.WithLabelValues(class).Inc()
	m.duration.WithLabelValues(method).Observe(seconds)
}

// RecordMutation counts a mutation verdict ("applied", "replayed",
// "conflict", "rejected").
func (m *Metrics) RecordMutation(verdict string) {
	m.mutations.WithLabelValues(verdict).Inc()
}

// RecordRateLimited counts a refused request.
func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Inc()
}
