// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/metrics"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// InsertSighting stores one validated sighting. The insert is idempotent on
// (device_id, timestamp_utc, session_id): a re-delivered record is dropped
// and ErrDuplicateSighting returned so the caller can count it.
func (db *DB) InsertSighting(ctx context.Context, s *models.DeviceSighting) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.ClusterID == "" {
		s.ClusterID = models.UnknownClusterID
	}

	// Anti-join insert keeps retried capture batches idempotent without
	// relying on constraint-violation error parsing.
	query := `INSERT INTO sightings (
		device_id, timestamp_utc, session_id, mode, signal_strength,
		latitude, longitude, cluster_id, fingerprint, created_at
	)
	SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
	WHERE NOT EXISTS (
		SELECT 1 FROM sightings
		WHERE device_id = ? AND timestamp_utc = ? AND session_id = ?
	)`

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, query,
		s.DeviceID, s.TimestampUTC, s.SessionID, string(s.Mode), s.SignalStrength,
		s.Latitude, s.Longitude, s.ClusterID, s.Fingerprint, s.CreatedAt,
		s.DeviceID, s.TimestampUTC, s.SessionID,
	)
	metrics.ObserveDBQuery("insert", "sightings", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert sighting: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDuplicateSighting
	}
	return nil
}

// SightingFilter narrows QuerySightings results. Zero values are ignored.
type SightingFilter struct {
	DeviceID  string
	Mode      models.ScanMode
	ClusterID string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// QuerySightings returns sightings matching the filter, newest first.
func (db *DB) QuerySightings(ctx context.Context, f SightingFilter) ([]models.DeviceSighting, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT device_id, timestamp_utc, session_id, mode, signal_strength,
		latitude, longitude, cluster_id, fingerprint, created_at
	FROM sightings WHERE 1=1`
	args := []interface{}{}

	if f.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, f.DeviceID)
	}
	if f.Mode != "" {
		query += " AND mode = ?"
		args = append(args, string(f.Mode))
	}
	if f.ClusterID != "" {
		query += " AND cluster_id = ?"
		args = append(args, f.ClusterID)
	}
	if !f.Since.IsZero() {
		query += " AND timestamp_utc >= ?"
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		query += " AND timestamp_utc <= ?"
		args = append(args, f.Until)
	}

	query += " ORDER BY timestamp_utc DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, f.Offset)
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.ObserveDBQuery("select", "sightings", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}
	defer rows.Close()

	var out []models.DeviceSighting
	for rows.Next() {
		var s models.DeviceSighting
		var mode string
		if err := rows.Scan(
			&s.DeviceID, &s.TimestampUTC, &s.SessionID, &mode, &s.SignalStrength,
			&s.Latitude, &s.Longitude, &s.ClusterID, &s.Fingerprint, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		s.Mode = models.ScanMode(mode)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sighting rows iteration failed: %w", err)
	}
	return out, nil
}

// CountSightings returns the total number of stored sightings.
func (db *DB) CountSightings(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	start := time.Now()
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sightings`).Scan(&n)
	metrics.ObserveDBQuery("count", "sightings", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count sightings: %w", err)
	}
	return n, nil
}

// SignalSamples returns the most recent signal-strength readings for a
// device, newest first. Used for trend classification.
func (db *DB) SignalSamples(ctx context.Context, deviceID string, limit int) ([]int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT signal_strength FROM sightings
		WHERE device_id = ?
		ORDER BY timestamp_utc DESC
		LIMIT ?`, deviceID, limit)
	metrics.ObserveDBQuery("select", "sightings", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal samples: %w", err)
	}
	defer rows.Close()

	var samples []int
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan signal sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("signal sample rows iteration failed: %w", err)
	}
	return samples, nil
}

// DeviceAggregate is the per-device summary the correlation engine scores:
// how many distinct known locations a device appeared at, how often, and when.
type DeviceAggregate struct {
	DeviceID              string
	DistinctLocationCount int
	TotalEncounters       int64
	FirstEncounter        time.Time
	LastEncounter         time.Time
}

// AggregateDevices summarizes sightings per device over [since, until].
// Sightings in the unknown cluster count toward TotalEncounters but never
// toward DistinctLocationCount.
func (db *DB) AggregateDevices(ctx context.Context, since, until time.Time) ([]DeviceAggregate, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT
		device_id,
		COUNT(DISTINCT CASE WHEN cluster_id != ? THEN cluster_id END) AS distinct_locations,
		COUNT(*) AS total_encounters,
		MIN(timestamp_utc) AS first_encounter,
		MAX(timestamp_utc) AS last_encounter
	FROM sightings
	WHERE timestamp_utc >= ? AND timestamp_utc <= ?
	GROUP BY device_id`

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, models.UnknownClusterID, since, until)
	metrics.ObserveDBQuery("aggregate", "sightings", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate devices: %w", err)
	}
	defer rows.Close()

	var out []DeviceAggregate
	for rows.Next() {
		var a DeviceAggregate
		if err := rows.Scan(
			&a.DeviceID, &a.DistinctLocationCount, &a.TotalEncounters,
			&a.FirstEncounter, &a.LastEncounter,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device aggregate: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("device aggregate rows iteration failed: %w", err)
	}
	return out, nil
}

// PrunePolicy bounds sighting storage. Zero values disable a dimension.
type PrunePolicy struct {
	// MaxAge removes sightings older than Now minus MaxAge.
	MaxAge time.Duration

	// MaxRows removes oldest sightings beyond this count.
	MaxRows int64

	// Now is the reference clock. Zero means time.Now().
	Now time.Time
}

// PruneSightings applies the retention policy, oldest sightings first, and
// returns the number of rows removed.
func (db *DB) PruneSightings(ctx context.Context, policy PrunePolicy) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := policy.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var removed int64

	if policy.MaxAge > 0 {
		cutoff := now.Add(-policy.MaxAge)
		start := time.Now()
		res, err := db.conn.ExecContext(ctx,
			`DELETE FROM sightings WHERE timestamp_utc < ?`, cutoff)
		metrics.ObserveDBQuery("delete", "sightings", start, err)
		if err != nil {
			return removed, fmt.Errorf("failed to prune sightings by age: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("failed to read prune rows affected: %w", err)
		}
		removed += n
		metrics.SightingsPruned.WithLabelValues("age").Add(float64(n))
	}

	if policy.MaxRows > 0 {
		total, err := db.CountSightings(ctx)
		if err != nil {
			return removed, err
		}
		if excess := total - policy.MaxRows; excess > 0 {
			start := time.Now()
			res, err := db.conn.ExecContext(ctx,
				`DELETE FROM sightings
				WHERE (device_id, timestamp_utc, session_id) IN (
					SELECT device_id, timestamp_utc, session_id FROM sightings
					ORDER BY timestamp_utc ASC
					LIMIT ?
				)`, excess)
			metrics.ObserveDBQuery("delete", "sightings", start, err)
			if err != nil {
				return removed, fmt.Errorf("failed to prune sightings by count: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return removed, fmt.Errorf("failed to read prune rows affected: %w", err)
			}
			removed += n
			metrics.SightingsPruned.WithLabelValues("count").Add(float64(n))
		}
	}

	return removed, nil
}
