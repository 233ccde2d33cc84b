// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package services

import (
	"context"
	"time"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// RankingEngine recomputes and serves the suspect ranking.
type RankingEngine interface {
	Recompute(ctx context.Context) error
	Ranked() []models.SuspectScore
}

// SuspectEvaluator raises alerts for a fresh ranking.
type SuspectEvaluator interface {
	EvaluateSuspects(ctx context.Context, ranked []models.SuspectScore)
}

// SuspectBroadcaster pushes the ranking to dashboard clients.
type SuspectBroadcaster interface {
	BroadcastSuspects(ranked []models.SuspectScore)
}

// RecomputeService periodically recomputes the correlation ranking, then
// feeds the result to the alert dispatcher and the websocket hub. A failed
// recompute keeps the previous ranking, so downstream consumers are only
// notified on success.
type RecomputeService struct {
	engine      RankingEngine
	evaluator   SuspectEvaluator
	broadcaster SuspectBroadcaster
	interval    time.Duration
}

// NewRecomputeService wires the recompute scheduler. evaluator and
// broadcaster may be nil.
func NewRecomputeService(engine RankingEngine, evaluator SuspectEvaluator, broadcaster SuspectBroadcaster, interval time.Duration) *RecomputeService {
	return &RecomputeService{
		engine:      engine,
		evaluator:   evaluator,
		broadcaster: broadcaster,
		interval:    interval,
	}
}

// Serve implements suture.Service. The first recompute runs immediately so
// the API serves a ranking as soon as data exists.
func (s *RecomputeService) Serve(ctx context.Context) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *RecomputeService) runOnce(ctx context.Context) {
	if err := s.engine.Recompute(ctx); err != nil {
		logging.Error().Err(err).Msg("suspect recompute failed, keeping previous ranking")
		return
	}

	ranked := s.engine.Ranked()
	if s.evaluator != nil {
		s.evaluator.EvaluateSuspects(ctx, ranked)
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSuspects(ranked)
	}
}

// String implements fmt.Stringer.
func (s *RecomputeService) String() string {
	return "recompute-scheduler"
}
