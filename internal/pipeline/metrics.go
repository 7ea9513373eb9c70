package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapi_pipeline_batches_total",
			Help: "Total number of processed batches by result",
		},
		[]string{"result"}, // ok, fetch_error, insert_error
	)

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapi_pipeline_batch_duration_seconds",
		Help:    "Fetch and resolve time per batch",
		Buckets: prometheus.DefBuckets,
	})

	rowsStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_pipeline_rows_stored_total",
		Help: "Total number of rows committed",
	})

	recordsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_pipeline_records_skipped_total",
		Help: "Total number of fetched records without a row (not found)",
	})

	insertFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_pipeline_insert_failures_total",
		Help: "Total number of failed batch inserts",
	})
)
