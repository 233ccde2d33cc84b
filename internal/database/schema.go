// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core tables and indexes.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %s: %w", query, err)
		}
	}

	return nil
}

func tableCreationQueries() []string {
	return []string{
		// Sightings are immutable once stored. The (device_id,
		// timestamp_utc, session_id) triple is the natural key and the
		// idempotency boundary for re-delivered capture batches.
		`CREATE TABLE IF NOT EXISTS sightings (
			device_id TEXT NOT NULL,
			timestamp_utc TIMESTAMP NOT NULL,
			session_id UUID NOT NULL,
			mode TEXT NOT NULL,
			signal_strength INTEGER NOT NULL,
			latitude DOUBLE,
			longitude DOUBLE,
			cluster_id TEXT NOT NULL,
			fingerprint TEXT,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (device_id, timestamp_utc, session_id)
		)`,

		`CREATE TABLE IF NOT EXISTS scan_sessions (
			session_id UUID PRIMARY KEY,
			mode TEXT NOT NULL,
			trigger_reason TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS location_clusters (
			cluster_id TEXT PRIMARY KEY,
			centroid_lat DOUBLE NOT NULL,
			centroid_lon DOUBLE NOT NULL,
			radius_meters DOUBLE NOT NULL,
			fix_count BIGINT NOT NULL,
			first_seen TIMESTAMP NOT NULL,
			last_seen TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS alert_history (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			severity TEXT NOT NULL,
			device_id TEXT,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata TEXT,
			channel TEXT,
			delivered BOOLEAN NOT NULL,
			delivery_error TEXT,
			created_at TIMESTAMP NOT NULL
		)`,

		// Correlation snapshots group by device over a time range;
		// device_id + timestamp is the dominant access pattern.
		`CREATE INDEX IF NOT EXISTS idx_sightings_device_time
			ON sightings (device_id, timestamp_utc)`,

		`CREATE INDEX IF NOT EXISTS idx_sightings_time
			ON sightings (timestamp_utc)`,

		`CREATE INDEX IF NOT EXISTS idx_sightings_cluster
			ON sightings (cluster_id)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_mode_active
			ON scan_sessions (mode, end_time)`,

		`CREATE INDEX IF NOT EXISTS idx_alerts_device_kind_time
			ON alert_history (device_id, kind, created_at)`,
	}
}
