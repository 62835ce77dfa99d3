package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsManager holds the service's Prometheus collectors on a private registry.
type MetricsManager struct {
	Registry *prometheus.Registry

	CacheLookupsTotal     *prometheus.CounterVec // result: hit, miss, error
	CacheErrorsTotal      *prometheus.CounterVec // operation: get, set, delete, decode
	BasketWritesTotal     *prometheus.CounterVec // operation, result
	CheckoutsTotal        *prometheus.CounterVec // outcome
	DiscountLookupLatency *prometheus.HistogramVec
	HTTPRequestLatency    *prometheus.HistogramVec
}

func NewMetricsManager(namespace string) *MetricsManager {
	registry := prometheus.NewRegistry()

	m := &MetricsManager{
		Registry: registry,
		CacheLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "basket_cache_lookups_total",
			Help:      "Basket cache lookups by result.",
		}, []string{"result"}),
		CacheErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "basket_cache_errors_total",
			Help:      "Basket cache failures that were absorbed, by operation.",
		}, []string{"operation"}),
		BasketWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "basket_writes_total",
			Help:      "Basket store and delete operations by result.",
		}, []string{"operation", "result"}),
		CheckoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "basket_checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		DiscountLookupLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discount_lookup_duration_seconds",
			Help:      "Latency of discount RPC lookups.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		HTTPRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		m.CacheLookupsTotal,
		m.CacheErrorsTotal,
		m.BasketWritesTotal,
		m.CheckoutsTotal,
		m.DiscountLookupLatency,
		m.HTTPRequestLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
