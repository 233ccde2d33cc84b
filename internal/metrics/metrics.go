// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package metrics provides Prometheus instrumentation for the sighting
// pipeline, the correlation engine, session transitions, and alert delivery.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest pipeline

	SightingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightings_ingested_total",
			Help: "Total number of sightings accepted into the store",
		},
		[]string{"mode"},
	)

	SightingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightings_rejected_total",
			Help: "Total number of sightings rejected by validation",
		},
		[]string{"reason"}, // "invalid", "clock_skew", "time_bounds"
	)

	SightingsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sightings_duplicate_total",
			Help: "Total number of idempotent re-deliveries dropped by the store",
		},
	)

	SightingsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sightings_pruned_total",
			Help: "Total number of sightings removed by retention pruning",
		},
		[]string{"policy"}, // "age", "count"
	)

	// Database

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Correlation engine

	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "correlation_recompute_duration_seconds",
			Help:    "Duration of full suspect-ranking recomputes in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	RecomputeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "correlation_recompute_errors_total",
			Help: "Total number of failed recompute passes",
		},
	)

	SuspectsRanked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "correlation_suspects_ranked",
			Help: "Number of devices in the current ranked suspect list",
		},
	)

	ClustersTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geocluster_clusters_tracked",
			Help: "Number of location clusters currently tracked",
		},
	)

	// Capture backend

	CapturePollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capture_poll_errors_total",
			Help: "Total number of failed capture backend polls",
		},
	)

	CaptureBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capture_breaker_open",
			Help: "Whether the capture circuit breaker is open (1) or closed (0)",
		},
	)

	// Session manager

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"from", "to"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of currently active scan sessions",
		},
	)

	// Alerts

	AlertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_dispatched_total",
			Help: "Total number of alerts dispatched",
		},
		[]string{"kind", "severity"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_suppressed_total",
			Help: "Total number of alerts suppressed by the cooldown window",
		},
		[]string{"kind"},
	)

	AlertDeliveryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_delivery_errors_total",
			Help: "Total number of failed notification deliveries",
		},
		[]string{"channel"},
	)

	// WebSocket

	WSClientsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients_connected",
			Help: "Number of currently connected websocket clients",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of messages broadcast to websocket clients",
		},
		[]string{"type"},
	)
)

// ObserveDBQuery records one database query's duration, and its error if any.
func ObserveDBQuery(operation, table string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}
