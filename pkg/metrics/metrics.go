package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quix", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quix", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quix", Name: "store_operations_total", Help: "Storage engine operations by operation and outcome."},
		[]string{"operation", "outcome"},
	)
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "quix", Name: "store_operation_duration_seconds", Help: "Storage engine operation latency.", Buckets: prometheus.DefBuckets},
		[]string{"operation"},
	)
	ContainerProvisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quix", Name: "container_provisions_total", Help: "Container provisioning calls by outcome."},
		[]string{"outcome"},
	)
	ExportedDocuments = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "quix", Name: "exported_documents_total", Help: "Documents written by exports."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(StoreOperations)
	reg.MustRegister(StoreOperationDuration)
	reg.MustRegister(ContainerProvisions)
	reg.MustRegister(ExportedDocuments)
}
