// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderRequests counts adapter calls by provider, operation and outcome.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_provider_requests_total",
		Help: "Total number of calls made to upstream weather providers.",
	}, []string{"provider", "operation", "outcome"})

	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weather_provider_duration_seconds",
		Help:    "Upstream weather provider call latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	// AggregationConfidence records the confidence of every fresh aggregate.
	AggregationConfidence = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weather_aggregation_confidence",
		Help:    "Share of attempted providers that contributed to an aggregate.",
		Buckets: []float64{0.25, 0.34, 0.5, 0.67, 0.75, 1},
	}, []string{"operation"})

	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weather_cache_operations_total",
		Help: "Cache operations by backend, operation and result.",
	}, []string{"backend", "operation", "result"})

	// CacheDegraded is 1 while the cache serves from the in-process fallback.
	CacheDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "weather_cache_degraded",
		Help: "1 when the durable cache backend is unavailable and the in-memory fallback is in use.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests served.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// ObserveProvider records one adapter call.
func ObserveProvider(provider, operation string, err error, dur time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	ProviderRequests.WithLabelValues(provider, operation, outcome).Inc()
	ProviderDuration.WithLabelValues(provider, operation).Observe(dur.Seconds())
}

func ObserveCache(backend, operation, result string) {
	CacheOperations.WithLabelValues(backend, operation, result).Inc()
}

func SetCacheDegraded(degraded bool) {
	if degraded {
		CacheDegraded.Set(1)
		return
	}
	CacheDegraded.Set(0)
}

func ObserveHTTPRequest(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}
