// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"caseflow/apperr"
)

type collectors struct {
	operationTotal    *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	sequenceAllocated *prometheus.CounterVec
	reindexTotal      *prometheus.CounterVec
}

var singleton = sync.OnceValue(func() *collectors {
	return &collectors{
		operationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caseflow",
			Name:      "operation_total",
			Help:      "Engine operations by outcome.",
		}, []string{"operation", "result"}),
		operationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caseflow",
			Name:      "operation_latency_seconds",
			Help:      "Latency of engine operations including the store transaction.",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05,
				0.1, 0.25, 0.5, 1, 2.5, 5,
			},
		}, []string{"operation"}),
		sequenceAllocated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caseflow",
			Name:      "sequence_allocated_total",
			Help:      "Numbers handed out by the sequence allocator.",
		}, []string{"kind"}),
		reindexTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caseflow",
			Name:      "search_reindex_total",
			Help:      "Reindex signals sent to the search indexer by outcome.",
		}, []string{"result"}),
	}
})

// Result labels err by its apperr kind, "ok" for nil.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}

func ObserveOperation(operation string, started time.Time, err error) {
	c := singleton()
	c.operationTotal.WithLabelValues(operation, Result(err)).Inc()
	c.operationLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func SequenceAllocated(kind string) {
	singleton().sequenceAllocated.WithLabelValues(kind).Inc()
}

func Reindex(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	singleton().reindexTotal.WithLabelValues(result).Inc()
}
