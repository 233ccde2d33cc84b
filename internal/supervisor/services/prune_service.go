// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package services

import (
	"context"
	"time"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
)

// SightingPruner applies a retention policy to stored sightings.
type SightingPruner interface {
	PruneSightings(ctx context.Context, policy database.PrunePolicy) (int64, error)
}

// PruneService enforces retention on the sighting store at a fixed cadence.
type PruneService struct {
	pruner   SightingPruner
	policy   database.PrunePolicy
	interval time.Duration
}

// NewPruneService wires the retention scheduler.
func NewPruneService(pruner SightingPruner, policy database.PrunePolicy, interval time.Duration) *PruneService {
	return &PruneService{
		pruner:   pruner,
		policy:   policy,
		interval: interval,
	}
}

// Serve implements suture.Service.
func (s *PruneService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := s.pruner.PruneSightings(ctx, s.policy)
			if err != nil {
				logging.Error().Err(err).Msg("sighting prune failed")
				continue
			}
			if removed > 0 {
				logging.Info().Int64("removed", removed).Msg("pruned old sightings")
			}
		}
	}
}

// String implements fmt.Stringer.
func (s *PruneService) String() string {
	return "prune-scheduler"
}
