package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesms_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesms_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	// QueryDuration is the time spent in the store for one service operation.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "salesms_query_duration_seconds",
			Help:    "Sales query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesms_cache_lookups_total",
			Help: "Cache lookups by cache and result (hit, miss, error)",
		},
		[]string{"cache", "result"},
	)
	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesms_import_rows_total",
			Help: "CSV rows processed by the importer, by outcome",
		},
		[]string{"outcome"},
	)
)
