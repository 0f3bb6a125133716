// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsFetched counts change events returned by the API, per channel.
	EventsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adchange_events_fetched_total",
		Help: "Change events returned by the change history API",
	}, []string{"channel"})

	// EventsIngested counts events written to the ledger and records table.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adchange_events_ingested_total",
		Help: "Change events recorded for measurement",
	}, []string{"channel"})

	// EventsSkipped counts events dropped before recording, by reason
	// (filtered, duplicate, malformed, error).
	EventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adchange_events_skipped_total",
		Help: "Change events not recorded",
	}, []string{"channel", "reason"})

	// FetchFailures counts channels whose fetch failed.
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adchange_fetch_failures_total",
		Help: "Failed change history fetches",
	}, []string{"channel"})

	RecordsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adchange_records_finalized_total",
		Help: "Change records finalized with after metrics and a narrative",
	})

	// RunDuration measures pipeline runs by kind and outcome.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adchange_run_duration_seconds",
		Help:    "Duration of pipeline runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind", "status"})

	// LastSuccess is the unix time of the last successful run per kind.
	LastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adchange_last_success_timestamp_seconds",
		Help: "Unix time of the last successful pipeline run",
	}, []string{"kind"})
)
