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

// UpsertCluster persists a location cluster's current centroid and counters.
// The geocluster resolver owns the in-memory truth; this keeps it durable
// across restarts.
func (db *DB) UpsertCluster(ctx context.Context, c *models.LocationCluster) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `INSERT INTO location_clusters (
		cluster_id, centroid_lat, centroid_lon, radius_meters, fix_count, first_seen, last_seen
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (cluster_id) DO UPDATE SET
		centroid_lat = EXCLUDED.centroid_lat,
		centroid_lon = EXCLUDED.centroid_lon,
		radius_meters = EXCLUDED.radius_meters,
		fix_count = EXCLUDED.fix_count,
		last_seen = EXCLUDED.last_seen`

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, query,
		c.ClusterID, c.CentroidLat, c.CentroidLon, c.RadiusMeters,
		c.FixCount, c.FirstSeen, c.LastSeen)
	metrics.ObserveDBQuery("upsert", "location_clusters", start, err)
	if err != nil {
		return fmt.Errorf("failed to upsert cluster %s: %w", c.ClusterID, err)
	}
	return nil
}

// ListClusters returns all persisted location clusters, most recently seen
// first. Used to hydrate the resolver at startup and to feed the dashboard.
func (db *DB) ListClusters(ctx context.Context) ([]models.LocationCluster, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx,
		`SELECT cluster_id, centroid_lat, centroid_lon, radius_meters, fix_count, first_seen, last_seen
		FROM location_clusters ORDER BY last_seen DESC`)
	metrics.ObserveDBQuery("select", "location_clusters", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	defer rows.Close()

	var out []models.LocationCluster
	for rows.Next() {
		var c models.LocationCluster
		if err := rows.Scan(
			&c.ClusterID, &c.CentroidLat, &c.CentroidLon, &c.RadiusMeters,
			&c.FixCount, &c.FirstSeen, &c.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cluster rows iteration failed: %w", err)
	}
	return out, nil
}
