// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package watchlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/session"
)

// SightingSearcher is the read surface sweeps use.
type SightingSearcher interface {
	QuerySightings(ctx context.Context, f database.SightingFilter) ([]models.DeviceSighting, error)
}

// SessionControl opens and closes the bookkeeping session around a sweep.
type SessionControl interface {
	Activate(ctx context.Context, mode models.ScanMode, trigger models.TriggerReason) (*models.ScanSession, error)
	Deactivate(ctx context.Context, sessionID uuid.UUID) error
}

// HitHandler is notified for each watchlisted device found by a sweep.
type HitHandler interface {
	WatchlistHit(ctx context.Context, profile models.DeviceProfile, latest models.DeviceSighting)
}

// Sweeper periodically searches stored sightings for watchlisted devices.
// Unlike the capture modes it reads the store only, so it runs concurrently
// with any live scan.
type Sweeper struct {
	profiles  *Store
	sightings SightingSearcher
	sessions  SessionControl
	hits      HitHandler
	interval  time.Duration
	lookback  time.Duration
}

// NewSweeper wires a sweeper.
func NewSweeper(profiles *Store, sightings SightingSearcher, sessions SessionControl, hits HitHandler, interval, lookback time.Duration) *Sweeper {
	return &Sweeper{
		profiles:  profiles,
		sightings: sightings,
		sessions:  sessions,
		hits:      hits,
		interval:  interval,
		lookback:  lookback,
	}
}

// Serve sweeps on the configured cadence until ctx is cancelled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Info().
		Dur("interval", s.interval).
		Dur("lookback", s.lookback).
		Msg("watchlist sweeper started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("watchlist sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over the watchlist. Exported so the API can trigger an
// immediate sweep.
func (s *Sweeper) Sweep(ctx context.Context) {
	watched, err := s.profiles.List(true)
	if err != nil {
		logging.Error().Err(err).Msg("failed to list watchlisted profiles")
		return
	}
	if len(watched) == 0 {
		return
	}

	sess, err := s.sessions.Activate(ctx, models.ModeWatchlist, models.TriggerWatchlistScheduled)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			logging.Debug().Msg("watchlist sweep already running, skipping")
			return
		}
		logging.Error().Err(err).Msg("failed to open watchlist session")
		return
	}
	defer func() {
		if err := s.sessions.Deactivate(ctx, sess.SessionID); err != nil {
			logging.Warn().Err(err).Msg("failed to close watchlist session")
		}
	}()

	since := time.Now().UTC().Add(-s.lookback)
	hits := 0
	for _, profile := range watched {
		found, err := s.sightings.QuerySightings(ctx, database.SightingFilter{
			DeviceID: profile.DeviceID,
			Since:    since,
			Limit:    1,
		})
		if err != nil {
			logging.Error().Err(err).
				Str("device_id", profile.DeviceID).
				Msg("watchlist query failed")
			continue
		}
		if len(found) == 0 {
			continue
		}
		hits++
		if s.hits != nil {
			s.hits.WatchlistHit(ctx, profile, found[0])
		}
	}

	logging.Info().
		Int("watched", len(watched)).
		Int("hits", hits).
		Msg("watchlist sweep completed")
}
