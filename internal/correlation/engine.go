// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package correlation ranks devices by how suspiciously they follow the
// operator across distinct locations. Rankings are derived state: each
// recompute reads a consistent snapshot of the sighting store, scores every
// device, and atomically swaps the cached result. A crashed or cancelled
// recompute leaves the previous ranking intact.
package correlation

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/metrics"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// trendSampleCount is how many recent signal readings feed trend
// classification.
const trendSampleCount = 5

// trendThresholdDBm is the signal delta beyond which a device is classified
// as approaching or receding rather than stable.
const trendThresholdDBm = 5

// SightingSource is the read surface the engine needs from the store.
type SightingSource interface {
	AggregateDevices(ctx context.Context, since, until time.Time) ([]database.DeviceAggregate, error)
	SignalSamples(ctx context.Context, deviceID string, limit int) ([]int, error)
}

// Config holds the scoring parameters.
type Config struct {
	// LocationWeight multiplies the distinct known-location count.
	LocationWeight float64

	// EncounterWeight multiplies log(1 + total encounters).
	EncounterWeight float64

	// MinLocations excludes devices seen at fewer distinct known
	// locations. Never below 2: a device seen in one place is ambient,
	// not a tail.
	MinLocations int

	// Lookback is the time range each recompute covers.
	Lookback time.Duration

	// MaxSuspects caps the ranked output.
	MaxSuspects int
}

// Engine computes and caches the ranked suspect list.
type Engine struct {
	source SightingSource
	cfg    Config

	mu       sync.RWMutex
	ranked   []models.SuspectScore
	byDevice map[string]models.SuspectScore
	lastRun  time.Time
}

// NewEngine creates a correlation engine. The cache is empty until the first
// Recompute.
func NewEngine(source SightingSource, cfg Config) *Engine {
	if cfg.MinLocations < 2 {
		cfg.MinLocations = 2
	}
	return &Engine{
		source:   source,
		cfg:      cfg,
		byDevice: make(map[string]models.SuspectScore),
	}
}

// Recompute rebuilds the ranking from a store snapshot and swaps it in
// atomically. On error the previous ranking stays in place.
func (e *Engine) Recompute(ctx context.Context) error {
	start := time.Now()
	until := time.Now().UTC()
	since := until.Add(-e.cfg.Lookback)

	aggs, err := e.source.AggregateDevices(ctx, since, until)
	if err != nil {
		metrics.RecomputeErrors.Inc()
		return err
	}

	scores := make([]models.SuspectScore, 0, len(aggs))
	for _, a := range aggs {
		if a.DistinctLocationCount < e.cfg.MinLocations {
			continue
		}
		scores = append(scores, models.SuspectScore{
			DeviceID:              a.DeviceID,
			DistinctLocationCount: a.DistinctLocationCount,
			TotalEncounters:       a.TotalEncounters,
			FirstEncounter:        a.FirstEncounter,
			LastEncounter:         a.LastEncounter,
			Score:                 e.score(a.DistinctLocationCount, a.TotalEncounters),
			SignalTrend:           models.TrendUnknown,
		})
	}

	// Higher score first; equal scores break toward the device seen most
	// recently, which keeps an active tail above a historical one.
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].LastEncounter.After(scores[j].LastEncounter)
	})

	if e.cfg.MaxSuspects > 0 && len(scores) > e.cfg.MaxSuspects {
		scores = scores[:e.cfg.MaxSuspects]
	}

	for i := range scores {
		scores[i].Rank = i + 1

		samples, err := e.source.SignalSamples(ctx, scores[i].DeviceID, trendSampleCount)
		if err != nil {
			logging.Warn().Err(err).
				Str("device_id", scores[i].DeviceID).
				Msg("failed to load signal samples for trend")
			continue
		}
		scores[i].SignalTrend = ClassifyTrend(samples)
	}

	byDevice := make(map[string]models.SuspectScore, len(scores))
	for _, s := range scores {
		byDevice[s.DeviceID] = s
	}

	e.mu.Lock()
	e.ranked = scores
	e.byDevice = byDevice
	e.lastRun = until
	e.mu.Unlock()

	metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
	metrics.SuspectsRanked.Set(float64(len(scores)))

	logging.Debug().
		Int("suspects", len(scores)).
		Dur("elapsed", time.Since(start)).
		Msg("suspect ranking recomputed")

	return nil
}

// score implements W1*distinctLocations + W2*log(1+totalEncounters). The
// location term dominates: many sightings in one place never outrank
// presence at multiple places.
func (e *Engine) score(distinctLocations int, totalEncounters int64) float64 {
	return e.cfg.LocationWeight*float64(distinctLocations) +
		e.cfg.EncounterWeight*math.Log1p(float64(totalEncounters))
}

// Ranked returns the current ranked suspect list, best suspects first.
func (e *Engine) Ranked() []models.SuspectScore {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.SuspectScore, len(e.ranked))
	copy(out, e.ranked)
	return out
}

// ScoreOf returns the cached score for one device.
func (e *Engine) ScoreOf(deviceID string) (models.SuspectScore, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.byDevice[deviceID]
	return s, ok
}

// LastRun returns when the cache was last rebuilt. Zero before the first
// successful recompute.
func (e *Engine) LastRun() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun
}

// ClassifyTrend classifies recent signal movement from samples ordered
// newest first. A rise of more than trendThresholdDBm between the oldest and
// newest sample means the device is approaching; a matching fall means it is
// receding.
func ClassifyTrend(samples []int) models.SignalTrend {
	if len(samples) < 2 {
		return models.TrendUnknown
	}
	if len(samples) > trendSampleCount {
		samples = samples[:trendSampleCount]
	}

	newest := samples[0]
	oldest := samples[len(samples)-1]
	delta := newest - oldest

	switch {
	case delta > trendThresholdDBm:
		return models.TrendApproaching
	case delta < -trendThresholdDBm:
		return models.TrendReceding
	default:
		return models.TrendStable
	}
}
