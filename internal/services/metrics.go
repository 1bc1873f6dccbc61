package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Chat metrics
	ChatRequests       prometheus.Counter
	ChatRequestLatency prometheus.Histogram
	ChatErrors         *prometheus.CounterVec

	// Retrieval metrics
	SourceResults  *prometheus.CounterVec
	SourceFailures *prometheus.CounterVec
	UpstreamCalls  *prometheus.HistogramVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics against the default registerer
func InitMetrics() *Metrics {
	return InitMetricsWith(prometheus.DefaultRegisterer)
}

// InitMetricsWith initializes the metrics against a specific registerer
func InitMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	metrics := &Metrics{
		ChatRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "restaurantrec_chat_requests_total",
			Help: "Total number of chat requests processed",
		}),

		// up to 2 minutes for LLM responses
		ChatRequestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "restaurantrec_chat_request_duration_seconds",
			Help:    "Chat request latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		ChatErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "restaurantrec_chat_errors_total",
			Help: "Total number of chat errors by type",
		}, []string{"error_type"}),

		// source: "structured" or "vector"
		SourceResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "restaurantrec_retrieval_results_total",
			Help: "Restaurants returned by each retrieval source",
		}, []string{"source"}),

		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "restaurantrec_retrieval_failures_total",
			Help: "Retrieval source failures that were degraded to empty results",
		}, []string{"source"}),

		UpstreamCalls: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "restaurantrec_upstream_duration_seconds",
			Help:    "Upstream API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream", "outcome"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "restaurantrec_cache_lookups_total",
			Help: "Cache lookups by result",
		}, []string{"result"}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordChatRequest records a chat request
func (m *Metrics) RecordChatRequest() {
	m.ChatRequests.Inc()
}

// RecordChatLatency records chat request latency
func (m *Metrics) RecordChatLatency(seconds float64) {
	m.ChatRequestLatency.Observe(seconds)
}

// RecordChatError records a chat error
func (m *Metrics) RecordChatError(errorType string) {
	m.ChatErrors.WithLabelValues(errorType).Inc()
}

// RecordSourceResults records how many restaurants a retrieval source produced
func (m *Metrics) RecordSourceResults(source string, count int) {
	m.SourceResults.WithLabelValues(source).Add(float64(count))
}

// RecordSourceFailure records a degraded retrieval source
func (m *Metrics) RecordSourceFailure(source string) {
	m.SourceFailures.WithLabelValues(source).Inc()
}

// RecordUpstreamCall records the latency of an upstream API call
func (m *Metrics) RecordUpstreamCall(upstream string, seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.UpstreamCalls.WithLabelValues(upstream, outcome).Observe(seconds)
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func recordUpstream(upstream string, seconds float64, err error) {
	if m := GetMetrics(); m != nil {
		m.RecordUpstreamCall(upstream, seconds, err)
	}
}

func recordSource(source string, count int, failed bool) {
	m := GetMetrics()
	if m == nil {
		return
	}
	if failed {
		m.RecordSourceFailure(source)
		return
	}
	m.RecordSourceResults(source, count)
}
