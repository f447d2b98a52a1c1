package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxvault_retrievals_total",
			Help: "Retrieval units run, by model, station and outcome",
		},
		[]string{"model", "station", "status"},
	)

	RetrievalLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wxvault_retrieval_latency_seconds",
			Help:    "Driver retrieval latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "station"},
	)

	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxvault_records_written_total",
			Help: "Records upserted into the archive",
		},
		[]string{"model", "station", "kind"},
	)

	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxvault_records_skipped_total",
			Help: "Malformed records dropped during validation",
		},
		[]string{"model", "station"},
	)

	CalcTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wxvault_calc_transitions_total",
			Help: "Station-day calc state transitions",
		},
		[]string{"station", "state"},
	)
)
