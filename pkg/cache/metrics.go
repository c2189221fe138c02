package cache

import "github.com/prometheus/client_golang/prometheus"

var requestCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "factgraph",
	Subsystem: "cache",
	Name:      "requests_total",
}, []string{"cache", "result"})

var loadCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "factgraph",
	Subsystem: "cache",
	Name:      "loads_total",
}, []string{"cache", "result"})

var loadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "factgraph",
	Subsystem: "cache",
	Name:      "load_duration_seconds",
	Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
}, []string{"cache"})

// Collectors returns the cache metrics for registration by the host process.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{requestCount, loadCount, loadDuration}
}
