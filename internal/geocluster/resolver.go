// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package geocluster turns raw GPS fixes into stable location identifiers.
// A fix within the configured radius of an existing cluster centroid joins
// that cluster; otherwise it founds a new one. Centroids are incremental
// running means, so a cluster drifts toward the true center of its fixes
// without ever unbounded growth of the radius.
package geocluster

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/metrics"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// Store persists cluster state across restarts.
type Store interface {
	UpsertCluster(ctx context.Context, c *models.LocationCluster) error
	ListClusters(ctx context.Context) ([]models.LocationCluster, error)
}

// Resolver maps GPS fixes to stable cluster identifiers. Safe for concurrent
// use.
type Resolver struct {
	mu           sync.RWMutex
	clusters     map[string]*models.LocationCluster
	radiusMeters float64
	maxClusters  int
	store        Store
}

// New creates a Resolver with the given join radius. store may be nil for
// purely in-memory operation (tests).
func New(radiusMeters float64, maxClusters int, store Store) *Resolver {
	return &Resolver{
		clusters:     make(map[string]*models.LocationCluster),
		radiusMeters: radiusMeters,
		maxClusters:  maxClusters,
		store:        store,
	}
}

// Hydrate loads persisted clusters from the store. Called once at startup
// before any Resolve.
func (r *Resolver) Hydrate(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	persisted, err := r.store.ListClusters(ctx)
	if err != nil {
		return fmt.Errorf("failed to hydrate clusters: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range persisted {
		c := persisted[i]
		r.clusters[c.ClusterID] = &c
	}
	metrics.ClustersTracked.Set(float64(len(r.clusters)))

	logging.Info().Int("clusters", len(r.clusters)).Msg("location clusters hydrated")
	return nil
}

// Resolve assigns a fix to a cluster, creating one if no centroid is within
// the join radius, and returns the cluster ID. Resolving nil coordinates
// returns the unknown sentinel.
func (r *Resolver) Resolve(ctx context.Context, lat, lon *float64, at time.Time) string {
	if lat == nil || lon == nil {
		return models.UnknownClusterID
	}

	r.mu.Lock()
	c := r.nearestWithinRadius(*lat, *lon)
	if c != nil {
		// Incremental running mean keeps the centroid exact without
		// storing member fixes.
		n := float64(c.FixCount)
		c.CentroidLat = (c.CentroidLat*n + *lat) / (n + 1)
		c.CentroidLon = (c.CentroidLon*n + *lon) / (n + 1)
		c.FixCount++
		if at.After(c.LastSeen) {
			c.LastSeen = at
		}
	} else {
		if r.maxClusters > 0 && len(r.clusters) >= r.maxClusters {
			r.mu.Unlock()
			logging.Warn().
				Int("max_clusters", r.maxClusters).
				Msg("cluster limit reached, assigning fix to unknown")
			return models.UnknownClusterID
		}
		c = &models.LocationCluster{
			ClusterID:    "loc-" + uuid.NewString()[:8],
			CentroidLat:  *lat,
			CentroidLon:  *lon,
			RadiusMeters: r.radiusMeters,
			FixCount:     1,
			FirstSeen:    at,
			LastSeen:     at,
		}
		r.clusters[c.ClusterID] = c
		metrics.ClustersTracked.Set(float64(len(r.clusters)))
	}
	snapshot := *c
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.UpsertCluster(ctx, &snapshot); err != nil {
			logging.Warn().Err(err).
				Str("cluster_id", snapshot.ClusterID).
				Msg("failed to persist cluster, in-memory state retained")
		}
	}

	return snapshot.ClusterID
}

// nearestWithinRadius returns the cluster whose centroid is closest to the
// fix and within the join radius. Caller holds the lock.
func (r *Resolver) nearestWithinRadius(lat, lon float64) *models.LocationCluster {
	var best *models.LocationCluster
	bestDist := math.MaxFloat64
	for _, c := range r.clusters {
		d := haversineDistance(lat, lon, c.CentroidLat, c.CentroidLon) * 1000
		if d <= r.radiusMeters && d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// CentroidOf returns the centroid of a cluster, or false if unknown.
func (r *Resolver) CentroidOf(clusterID string) (lat, lon float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clusters[clusterID]
	if !ok {
		return 0, 0, false
	}
	return c.CentroidLat, c.CentroidLon, true
}

// Clusters returns a snapshot of all tracked clusters.
func (r *Resolver) Clusters() []models.LocationCluster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.LocationCluster, 0, len(r.clusters))
	for _, c := range r.clusters {
		out = append(out, *c)
	}
	return out
}

// haversineDistance calculates the great-circle distance between two points
// in kilometers.
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
