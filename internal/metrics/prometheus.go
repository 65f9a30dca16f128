package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the sync and feature pipeline

var (
	// Sync metrics
	SyncTablesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfl_sync_tables_total",
			Help: "Total number of per-table sync executions",
		},
		[]string{"table", "strategy", "status"},
	)

	SyncRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfl_sync_rows_total",
			Help: "Rows written or deleted during stage-to-prod sync",
		},
		[]string{"table", "action"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nfl_sync_duration_seconds",
			Help:    "Duration of per-table sync in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	// Materialized view metrics
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfl_view_refresh_total",
			Help: "Materialized view refreshes by mode",
		},
		[]string{"view", "mode", "status"},
	)

	// Feature assembly metrics
	AssembleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nfl_assemble_duration_seconds",
			Help:    "Duration of a full modeling table build in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	AssembleGamesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nfl_assemble_games_total",
			Help: "Total modeling rows written",
		},
	)

	FallbackValuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nfl_asof_fallback_values_total",
			Help: "Feature values filled from the fallback hierarchy instead of a prior observation",
		},
		[]string{"fact"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nfl_system_uptime_seconds",
			Help: "Worker uptime in seconds",
		},
	)
)
