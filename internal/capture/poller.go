// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/google/uuid"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/config"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/metrics"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// GateKeeper reports which scan session, if any, currently holds the capture
// backend for a mode.
type GateKeeper interface {
	Gate(mode models.ScanMode) (sessionID uuid.UUID, startTime time.Time, open bool)
}

// FailureReporter receives the backend-down signal once the retry budget is
// exhausted.
type FailureReporter interface {
	ReportBackendFailure(ctx context.Context, cause error) error
}

// Forwarder accepts polled batches for ingestion.
type Forwarder interface {
	Forward(ctx context.Context, batch Batch) error
}

// Poller drives the capture backend on a fixed cadence. Polls only happen
// while an exclusive session holds the gate; the circuit breaker and retry
// budget keep a dead backend from being hammered.
type Poller struct {
	source   Source
	gps      GPSProvider
	gates    GateKeeper
	forward  Forwarder
	reporter FailureReporter
	cfg      config.CaptureConfig

	breaker *gobreaker.CircuitBreaker[[]models.RawSighting]
	limiter *rate.Limiter

	consecutiveFailures int
}

// NewPoller wires a poller. gps may be nil when no GPS hardware exists.
func NewPoller(source Source, gps GPSProvider, gates GateKeeper, forward Forwarder, reporter FailureReporter, cfg config.CaptureConfig) *Poller {
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	breaker := gobreaker.NewCircuitBreaker[[]models.RawSighting](gobreaker.Settings{
		Name:        "capture-backend",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.CaptureBreakerState.Set(1)
			} else {
				metrics.CaptureBreakerState.Set(0)
			}
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("capture breaker state changed")
		},
	})

	return &Poller{
		source:   source,
		gps:      gps,
		gates:    gates,
		forward:  forward,
		reporter: reporter,
		cfg:      cfg,
		breaker:  breaker,
		limiter:  limiter,
	}
}

// Serve polls until ctx is cancelled.
func (p *Poller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	logging.Info().
		Dur("interval", p.cfg.PollInterval).
		Msg("capture poller started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("capture poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce runs one poll cycle for whichever exclusive mode holds the gate.
func (p *Poller) pollOnce(ctx context.Context) {
	sessionID, startTime, mode, ok := p.activeExclusiveGate()
	if !ok {
		return
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
	}

	records, err := p.breaker.Execute(func() ([]models.RawSighting, error) {
		pollCtx, cancel := context.WithTimeout(ctx, p.cfg.ReadTimeout)
		defer cancel()
		return p.source.Poll(pollCtx)
	})
	if err != nil {
		p.handlePollError(ctx, err)
		return
	}
	p.consecutiveFailures = 0

	if len(records) == 0 {
		return
	}

	p.attachFix(ctx, records)

	batch := Batch{
		SessionID: sessionID,
		Mode:      mode,
		StartTime: startTime,
		Records:   records,
		PolledAt:  time.Now().UTC(),
	}
	if err := p.forward.Forward(ctx, batch); err != nil {
		logging.Error().Err(err).
			Int("records", len(records)).
			Msg("failed to forward capture batch")
	}
}

func (p *Poller) activeExclusiveGate() (uuid.UUID, time.Time, models.ScanMode, bool) {
	for _, mode := range []models.ScanMode{models.ModeHome, models.ModeRoam, models.ModeDoorbell} {
		if id, start, ok := p.gates.Gate(mode); ok {
			return id, start, mode, true
		}
	}
	return uuid.Nil, time.Time{}, "", false
}

// attachFix fills missing coordinates from the GPS provider. Records that
// already carry a backend fix keep it.
func (p *Poller) attachFix(ctx context.Context, records []models.RawSighting) {
	if p.gps == nil {
		return
	}
	lat, lon, err := p.gps.CurrentFix(ctx)
	if err != nil {
		logging.Debug().Err(err).Msg("gps fix unavailable")
		return
	}
	if lat == nil || lon == nil {
		return
	}
	for i := range records {
		if records[i].Latitude == nil || records[i].Longitude == nil {
			records[i].Latitude = lat
			records[i].Longitude = lon
		}
	}
}

func (p *Poller) handlePollError(ctx context.Context, err error) {
	metrics.CapturePollErrors.Inc()
	p.consecutiveFailures++

	logging.Warn().Err(err).
		Int("consecutive_failures", p.consecutiveFailures).
		Int("retry_budget", p.cfg.RetryBudget).
		Msg("capture poll failed")

	if p.consecutiveFailures < p.cfg.RetryBudget {
		return
	}
	p.consecutiveFailures = 0

	cause := err
	if errors.Is(err, gobreaker.ErrOpenState) {
		cause = fmt.Errorf("%w: circuit open", ErrBackendUnavailable)
	}
	if p.reporter != nil {
		if rerr := p.reporter.ReportBackendFailure(ctx, cause); rerr != nil {
			logging.Error().Err(rerr).Msg("failed to report backend failure")
		}
	}
}
