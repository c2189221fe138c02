package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "factgraph",
	Subsystem: "store",
	Name:      "operation_duration_seconds",
	Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
}, []string{"operation", "result"})

var reindexedFacts = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "factgraph",
	Subsystem: "reindex",
	Name:      "documents_total",
}, []string{"index_kind", "result"})

// Collectors returns the facade metrics for registration by the host process.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{operationDuration, reindexedFacts}
}

func observe(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}
