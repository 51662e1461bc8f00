package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// transitionsTotal counts guarded operations by outcome (ok, rejected, conflict, error).
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabtrack_transitions_total",
		Help: "Guarded workflow operations by operation and outcome",
	}, []string{"operation", "outcome"})

	conflictRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabtrack_conflict_retries_total",
		Help: "Optimistic concurrency retries by operation",
	}, []string{"operation"})

	scansDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabtrack_scans_deduplicated_total",
		Help: "Scan submissions answered with an existing event",
	})

	anomaliesRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabtrack_anomalies_total",
		Help: "Chain-of-custody anomalies raised by kind",
	}, []string{"kind"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fabtrack_operation_duration_seconds",
		Help:    "Latency of guarded workflow operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
