// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default histogram buckets for API latency. Generation calls are slow, so the
// upper buckets reach further than a typical API.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}

// Stream outcomes recorded by StreamsTotal.
const (
	OutcomeCompleted     = "completed"
	OutcomeClientGone    = "client_gone"
	OutcomeUpstreamError = "upstream_error"
)

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	StreamsActive prometheus.Gauge
	StreamsTotal  *prometheus.CounterVec
	StreamBytes   *prometheus.CounterVec
	StreamChunks  *prometheus.CounterVec

	AuthGateRedirects prometheus.Counter
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scafoldr_gateway_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scafoldr_gateway_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scafoldr_gateway_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scafoldr_gateway_upstream_request_duration_seconds",
			Help:    "Time until upstream response headers, in seconds.",
			Buckets: defaultBuckets,
		}, []string{"operation"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scafoldr_gateway_upstream_responses_total",
			Help: "Total upstream responses by operation and status code.",
		}, []string{"operation", "status_code"}),

		StreamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scafoldr_gateway_streams_active",
			Help: "Number of streams currently being relayed.",
		}),

		StreamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scafoldr_gateway_streams_total",
			Help: "Relayed streams by operation and outcome.",
		}, []string{"operation", "outcome"}),

		StreamBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scafoldr_gateway_stream_bytes_total",
			Help: "Bytes relayed from upstream streams to clients.",
		}, []string{"operation"}),

		StreamChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scafoldr_gateway_stream_chunks_total",
			Help: "Chunks relayed from upstream streams to clients.",
		}, []string{"operation"}),

		AuthGateRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scafoldr_gateway_auth_gate_redirects_total",
			Help: "Requests to protected paths redirected for lack of a session.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.StreamsActive,
		m.StreamsTotal,
		m.StreamBytes,
		m.StreamChunks,
		m.AuthGateRedirects,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
// Longer prefixes sharing a stem come first only for readability; matching
// requires a segment boundary, so /api/chat never claims /api/chat-interactive.
var knownPrefixes = []string{
	"/api/auth",
	"/api/chat-interactive",
	"/api/chat",
	"/api/code",
	"/api/dbml-ai-agent",
	"/api/fetch",
	"/api/generate",
	"/api/github",
	"/api/scafoldr-inc-stream",
	"/api/scafoldr-inc",
	"/app",
	"/auth",
	"/healthz",
	"/gateway/status",
	"/metrics",
}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
