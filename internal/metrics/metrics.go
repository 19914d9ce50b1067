// Package metrics exposes the gateway's Prometheus instrumentation
// (SPEC_FULL.md ambient stack — client_golang, mirroring the teacher's
// approach of one package owning all registered collectors).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the gateway registers. Constructed once at
// startup and shared across requests — collectors are safe for concurrent
// use.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	UpstreamErrors  *prometheus.CounterVec
	TokensConsumed  *prometheus.CounterVec
	RateLimitDenied *prometheus.CounterVec
	StreamChunks    *prometheus.CounterVec
}

// New registers the gateway's collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_requests_total",
			Help: "Total chat completion requests by provider, model, and outcome.",
		}, []string{"provider", "model", "outcome"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmrouter_request_duration_seconds",
			Help:    "End-to-end request latency by provider.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),

		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_upstream_errors_total",
			Help: "Upstream provider errors by provider and error kind.",
		}, []string{"provider", "kind"}),

		TokensConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_tokens_consumed_total",
			Help: "Input tokens counted by the rate-limit gate, by provider.",
		}, []string{"provider"}),

		RateLimitDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_rate_limit_denied_total",
			Help: "Requests denied by the token rate-limit gate.",
		}, []string{"provider", "reason"}),

		StreamChunks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrouter_stream_chunks_total",
			Help: "Streaming chunks emitted by provider.",
		}, []string{"provider"}),
	}
}

// ObserveRequest records the outcome and latency of one dispatch.
func (m *Metrics) ObserveRequest(provider, model, outcome string, start time.Time) {
	m.RequestsTotal.WithLabelValues(provider, model, outcome).Inc()
	m.RequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}
