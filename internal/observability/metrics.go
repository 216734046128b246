// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the explorer.
type Metrics struct {
	// Expansion metrics
	ExpansionsTotal   *prometheus.CounterVec
	ExpansionDuration prometheus.Histogram
	AccountsResolved  prometheus.Counter
	QueueDepth        prometheus.Gauge
	QueueDropsTotal   prometheus.Counter

	// Graph metrics
	GraphNodes prometheus.Gauge
	GraphEdges prometheus.Gauge

	// RPC pool metrics
	RPCCallLatency   *prometheus.HistogramVec
	EndpointFailures prometheus.Counter
	PoolResets       prometheus.Counter
	HealthyEndpoints prometheus.Gauge
	RateLimitHits    *prometheus.CounterVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Tracking metrics
	TrackedAccounts prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_graph_explorer"
	}

	return &Metrics{
		ExpansionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "expansion",
			Name:      "runs_total",
			Help:      "Total number of transaction expansions by outcome",
		}, []string{"outcome"}),
		ExpansionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "expansion",
			Name:      "duration_seconds",
			Help:      "Transaction expansion duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		AccountsResolved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "expansion",
			Name:      "accounts_resolved_total",
			Help:      "Total number of accounts resolved",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "expansion",
			Name:      "queue_depth",
			Help:      "Current number of accounts waiting in the fetch queue",
		}),
		QueueDropsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "expansion",
			Name:      "queue_drops_total",
			Help:      "Total number of accounts dropped at queue capacity",
		}),

		GraphNodes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "nodes",
			Help:      "Current number of graph nodes",
		}),
		GraphEdges: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "edges",
			Help:      "Current number of graph edges",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		EndpointFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "endpoint_failures_total",
			Help:      "Total number of endpoint failures reported to the pool",
		}),
		PoolResets: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "resets_total",
			Help:      "Total number of full pool resets after all endpoints failed",
		}),
		HealthyEndpoints: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "healthy_endpoints",
			Help:      "Number of endpoints currently considered healthy",
		}),
		RateLimitHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "rate_limit_hits_total",
			Help:      "Total number of rate-limit rejections by host",
		}, []string{"host"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of cache lookups by cache and result",
		}, []string{"cache", "result"}),

		TrackedAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "accounts",
			Help:      "Number of accounts currently tracked live",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordExpansion records a completed expansion.
func RecordExpansion(outcome string, durationSeconds float64) {
	DefaultMetrics.ExpansionsTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.ExpansionDuration.Observe(durationSeconds)
}

// RecordAccountResolved increments the resolved-account counter.
func RecordAccountResolved() {
	DefaultMetrics.AccountsResolved.Inc()
}

// RecordQueueDrop counts an account dropped at queue capacity.
func RecordQueueDrop() {
	DefaultMetrics.QueueDropsTotal.Inc()
}

// RecordEndpointFailure counts an endpoint failure reported to the pool.
func RecordEndpointFailure() {
	DefaultMetrics.EndpointFailures.Inc()
}

// RecordPoolReset counts a full pool reset after all endpoints failed.
func RecordPoolReset() {
	DefaultMetrics.PoolResets.Inc()
}

// UpdateQueueDepth updates the fetch queue gauge.
func UpdateQueueDepth(depth int) {
	DefaultMetrics.QueueDepth.Set(float64(depth))
}

// UpdateGraphSize updates the node/edge gauges.
func UpdateGraphSize(nodes, edges int) {
	DefaultMetrics.GraphNodes.Set(float64(nodes))
	DefaultMetrics.GraphEdges.Set(float64(edges))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRateLimitHit records a rate-limit rejection for a host.
func RecordRateLimitHit(host string) {
	DefaultMetrics.RateLimitHits.WithLabelValues(host).Inc()
}

// UpdateHealthyEndpoints updates the healthy-endpoint gauge.
func UpdateHealthyEndpoints(n int) {
	DefaultMetrics.HealthyEndpoints.Set(float64(n))
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(cache, result).Inc()
}

// UpdateTrackedAccounts updates the live-tracking gauge.
func UpdateTrackedAccounts(n int) {
	DefaultMetrics.TrackedAccounts.Set(float64(n))
}
