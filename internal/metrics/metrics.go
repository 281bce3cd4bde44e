package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moorsync_fetches_total",
			Help: "Total remote feed fetches (catalog pages, data files)",
		},
		[]string{"source", "status"},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moorsync_fetch_latency_seconds",
			Help:    "Remote feed fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	RowsUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moorsync_rows_updated_total",
			Help: "Engineering table rows updated by reconciliation",
		},
		[]string{"station", "parameter"},
	)

	PartitionsReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moorsync_partitions_reconciled_total",
			Help: "Engineering tables processed by reconciliation",
		},
		[]string{"station"},
	)

	UnitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moorsync_unit_failures_total",
			Help: "Partition/parameter units aborted by a persistence failure",
		},
		[]string{"station", "parameter"},
	)
)
