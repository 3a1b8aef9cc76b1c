package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreCalls tracks store operations per op tag and outcome
	StoreCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_store_calls_total",
			Help: "Total number of store operations",
		},
		[]string{"op", "outcome"},
	)

	// StoreLatency tracks store operation latency
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steward_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// RetryAttempts tracks failed attempts per reason code
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_retry_attempts_total",
			Help: "Total number of failed operation attempts",
		},
		[]string{"code"},
	)

	// RetryExhausted tracks operations that ran out of retries
	RetryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_retry_exhausted_total",
			Help: "Total number of operations that exhausted their retry budget",
		},
		[]string{"tag"},
	)

	// IngestRecords tracks ingested records per source and disposition
	IngestRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_ingest_records_total",
			Help: "Total number of ingested records",
		},
		[]string{"source", "disposition"},
	)

	// IngestRuns tracks importer runs per source and status
	IngestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_ingest_runs_total",
			Help: "Total number of importer runs",
		},
		[]string{"source", "status"},
	)

	// IngestDLQDepth tracks the dead-letter queue depth per source
	IngestDLQDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "steward_ingest_dlq_depth",
			Help: "Current depth of the ingest dead-letter queue",
		},
		[]string{"source"},
	)

	// DeletionRuns tracks deletion runs by outcome
	DeletionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_deletion_runs_total",
			Help: "Total number of account-deletion runs",
		},
		[]string{"outcome"},
	)

	// DeletionRows tracks rows removed or tombstoned per entity
	DeletionRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_deletion_rows_total",
			Help: "Total number of rows deleted or tombstoned per entity",
		},
		[]string{"entity"},
	)

	// DeletionFailures tracks per-entity deletion failures
	DeletionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_deletion_failures_total",
			Help: "Total number of per-entity deletion failures",
		},
		[]string{"entity"},
	)

	// DeletionCompensations tracks hard deletes converted to soft deletes
	DeletionCompensations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steward_deletion_compensations_total",
			Help: "Total number of hard deletes converted to soft deletes",
		},
	)
)
