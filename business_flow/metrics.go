package businessflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counter operations partitioned by operation and outcome
	counterOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counter_operations_total",
			Help: "Total number of counter operations",
		},
		[]string{"operation", "status"},
	)

	counterOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "counter_operation_duration_seconds",
			Help:    "Counter operation latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	counterCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counter_cache_requests_total",
			Help: "Counter value cache requests partitioned by result",
		},
		[]string{"result"}, // hit, miss, bypass, error
	)
)

const (
	opGetOrCreate = "get_or_create"
	opGetValue    = "get_value"
	opIncrement   = "increment"
	opDecrement   = "decrement"
	opReset       = "reset"
	opList        = "list"
	opExport      = "export"
)

// observe records one finished operation; call it deferred with a pointer to the named error result
func observe(operation string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
	}
	counterOperationsTotal.WithLabelValues(operation, status).Inc()
	counterOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
