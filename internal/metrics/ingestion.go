// Package metrics defines the Prometheus collectors for ingestion, chat and HTTP.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "plexi"

// Ingestion Prometheus metrics.
var (
	FilesListedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drive_files_listed_total",
			Help:      "Files found by the Drive walker",
		},
	)

	FilesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_files_skipped_total",
			Help:      "Files skipped during assembly",
		},
		[]string{"reason"},
	)

	DocumentsAssembledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_documents_total",
			Help:      "Documents that entered the corpus",
		},
	)

	ChunksIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_chunks_total",
			Help:      "Fragments embedded into an index",
		},
	)

	IngestionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs by result",
		},
		[]string{"status"}, // "ok" / "error"
	)

	IngestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of a full ingestion run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
)

var registerOnce sync.Once

// Register registers every Plexi collector with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			FilesListedTotal,
			FilesSkippedTotal,
			DocumentsAssembledTotal,
			ChunksIndexedTotal,
			IngestionRunsTotal,
			IngestionDuration,
			ChatTurnsTotal,
			ChatTurnDuration,
			ActiveSessions,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}
