// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package alerts turns detection events into deduplicated notifications.
// The dispatcher owns the per-(device, kind) cooldown window; delivery
// channels are injected Notifiers whose failures are recorded, never
// propagated. A broken SMTP server must not take down detection.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/metrics"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// Notifier delivers an alert over one channel.
type Notifier interface {
	// Name identifies the channel in history records.
	Name() string

	// Accepts reports whether this channel wants alerts of the severity.
	Accepts(sev models.Severity) bool

	// Notify delivers the alert.
	Notify(ctx context.Context, intent models.AlertIntent) error
}

// HistoryStore persists dispatched alerts.
type HistoryStore interface {
	InsertAlertRecord(ctx context.Context, rec *models.AlertRecord) error
	LastAlertTime(ctx context.Context, deviceID string, kind models.AlertKind) (time.Time, error)
}

// Broadcaster pushes alerts to live dashboard clients.
type Broadcaster interface {
	BroadcastAlert(rec models.AlertRecord)
}

// ProfileLookup answers watchlist membership questions on the hot path.
type ProfileLookup interface {
	Get(deviceID string) (*models.DeviceProfile, error)
	IsWatchlisted(deviceID string) bool
}

// SightingHistory answers prior-presence questions for cross-mode
// detection.
type SightingHistory interface {
	QuerySightings(ctx context.Context, f database.SightingFilter) ([]models.DeviceSighting, error)
}

// Dispatcher evaluates events, applies cooldowns, and fans alerts out to
// notifiers, history, and the dashboard feed.
type Dispatcher struct {
	history     HistoryStore
	notifiers   []Notifier
	broadcaster Broadcaster
	profiles    ProfileLookup
	sightings   SightingHistory
	cooldown    time.Duration
	linger      time.Duration
	rankLimit   int
	clock       func() time.Time

	mu            sync.Mutex
	lastFired     map[cooldownKey]time.Time
	ring          []models.AlertRecord
	ringLimit     int
	lingerFirst   map[string]time.Time
	lingerAlerted map[string]struct{}
	modesSeen     map[string]map[models.ScanMode]struct{}
	crossAlerted  map[string]struct{}
}

type cooldownKey struct {
	deviceID string
	kind     models.AlertKind
}

// NewDispatcher creates a dispatcher. broadcaster may be nil.
func NewDispatcher(history HistoryStore, notifiers []Notifier, broadcaster Broadcaster, cooldown, lingerThreshold time.Duration, rankThreshold, historyLimit int) *Dispatcher {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &Dispatcher{
		history:       history,
		notifiers:     notifiers,
		broadcaster:   broadcaster,
		cooldown:      cooldown,
		linger:        lingerThreshold,
		rankLimit:     rankThreshold,
		clock:         func() time.Time { return time.Now().UTC() },
		lastFired:     make(map[cooldownKey]time.Time),
		ring:          make([]models.AlertRecord, 0, historyLimit),
		ringLimit:     historyLimit,
		lingerFirst:   make(map[string]time.Time),
		lingerAlerted: make(map[string]struct{}),
		modesSeen:     make(map[string]map[models.ScanMode]struct{}),
		crossAlerted:  make(map[string]struct{}),
	}
}

// Dispatch fires one alert unless its cooldown window is still open.
// Returns true when the alert actually fired.
func (d *Dispatcher) Dispatch(ctx context.Context, intent models.AlertIntent) bool {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = d.clock()
	}

	if d.inCooldown(ctx, intent) {
		metrics.AlertsSuppressed.WithLabelValues(string(intent.Kind)).Inc()
		logging.Debug().
			Str("kind", string(intent.Kind)).
			Str("device_id", intent.DeviceID).
			Msg("alert suppressed by cooldown")
		return false
	}
	d.markFired(intent)

	metrics.AlertsDispatched.WithLabelValues(string(intent.Kind), string(intent.Severity)).Inc()
	logging.Info().
		Str("kind", string(intent.Kind)).
		Str("severity", string(intent.Severity)).
		Str("device_id", intent.DeviceID).
		Str("title", intent.Title).
		Msg("alert dispatched")

	delivered := false
	for _, n := range d.notifiers {
		if !n.Accepts(intent.Severity) {
			continue
		}
		delivered = true
		rec := recordFor(intent)
		rec.Channel = n.Name()
		if err := n.Notify(ctx, intent); err != nil {
			rec.Delivered = false
			rec.DeliverErr = err.Error()
			metrics.AlertDeliveryErrors.WithLabelValues(n.Name()).Inc()
			logging.Error().Err(err).
				Str("channel", n.Name()).
				Msg("alert delivery failed")
		} else {
			rec.Delivered = true
		}
		d.record(ctx, rec)
	}

	// No channel took it: still goes to history and the dashboard.
	if !delivered {
		rec := recordFor(intent)
		rec.Delivered = true
		d.record(ctx, rec)
	}

	return true
}

func recordFor(intent models.AlertIntent) models.AlertRecord {
	return models.AlertRecord{
		ID:        intent.ID,
		Kind:      intent.Kind,
		Severity:  intent.Severity,
		DeviceID:  intent.DeviceID,
		Title:     intent.Title,
		Message:   intent.Message,
		Metadata:  intent.Metadata,
		CreatedAt: intent.CreatedAt,
	}
}

func (d *Dispatcher) record(ctx context.Context, rec models.AlertRecord) {
	if d.history != nil {
		if err := d.history.InsertAlertRecord(ctx, &rec); err != nil {
			logging.Error().Err(err).Msg("failed to persist alert record")
		}
	}

	d.mu.Lock()
	d.ring = append(d.ring, rec)
	if len(d.ring) > d.ringLimit {
		d.ring = d.ring[len(d.ring)-d.ringLimit:]
	}
	d.mu.Unlock()

	if d.broadcaster != nil {
		d.broadcaster.BroadcastAlert(rec)
	}
}

// Recent returns up to limit most recent alerts, newest first.
func (d *Dispatcher) Recent(limit int) []models.AlertRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.ring)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.AlertRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = d.ring[n-1-i]
	}
	return out
}

// firesOnce reports whether a kind is a one-time threshold crossing for a
// device rather than a recurring condition. Such alerts never re-fire, not
// even after the cooldown window lapses.
func firesOnce(kind models.AlertKind) bool {
	return kind == models.AlertKindMultiLocation || kind == models.AlertKindCrossMode
}

// inCooldown checks the in-memory window first, then history. The history
// lookup survives restarts; a reboot must not re-fire every alert.
func (d *Dispatcher) inCooldown(ctx context.Context, intent models.AlertIntent) bool {
	if intent.DeviceID == "" {
		return false
	}
	if d.cooldown <= 0 && !firesOnce(intent.Kind) {
		return false
	}
	key := cooldownKey{deviceID: intent.DeviceID, kind: intent.Kind}
	now := d.clock()

	d.mu.Lock()
	last, ok := d.lastFired[key]
	d.mu.Unlock()
	if ok {
		return firesOnce(intent.Kind) || now.Sub(last) < d.cooldown
	}

	if d.history == nil {
		return false
	}
	persisted, err := d.history.LastAlertTime(ctx, intent.DeviceID, intent.Kind)
	if err != nil {
		logging.Warn().Err(err).Msg("cooldown history lookup failed")
		return false
	}
	if persisted.IsZero() {
		return false
	}
	d.mu.Lock()
	d.lastFired[key] = persisted
	d.mu.Unlock()
	return firesOnce(intent.Kind) || now.Sub(persisted) < d.cooldown
}

func (d *Dispatcher) markFired(intent models.AlertIntent) {
	if intent.DeviceID == "" {
		return
	}
	d.mu.Lock()
	d.lastFired[cooldownKey{deviceID: intent.DeviceID, kind: intent.Kind}] = d.clock()
	d.mu.Unlock()
}

// EvaluateSuspects raises alerts for the current ranking: one for each
// suspect at or above the rank threshold, and a multi-location alert the
// first time a device qualifies at all. Suspect alerts repeat once their
// cooldown lapses; the multi-location alert fires exactly once per device.
func (d *Dispatcher) EvaluateSuspects(ctx context.Context, ranked []models.SuspectScore) {
	for _, s := range ranked {
		meta, _ := json.Marshal(map[string]interface{}{
			"rank":                    s.Rank,
			"score":                   s.Score,
			"distinct_location_count": s.DistinctLocationCount,
			"total_encounters":        s.TotalEncounters,
			"signal_trend":            s.SignalTrend,
		})

		if d.rankLimit > 0 && s.Rank <= d.rankLimit {
			sev := models.SeverityWarning
			if s.Rank == 1 {
				sev = models.SeverityCritical
			}
			d.Dispatch(ctx, models.AlertIntent{
				Kind:     models.AlertKindSuspect,
				Severity: sev,
				DeviceID: s.DeviceID,
				Title:    fmt.Sprintf("Device ranked #%d possible tail", s.Rank),
				Message: fmt.Sprintf("%s seen at %d distinct locations, %d encounters, signal %s",
					s.DeviceID, s.DistinctLocationCount, s.TotalEncounters, s.SignalTrend),
				Metadata: meta,
			})
		}

		d.Dispatch(ctx, models.AlertIntent{
			Kind:     models.AlertKindMultiLocation,
			Severity: models.SeverityInfo,
			DeviceID: s.DeviceID,
			Title:    "Device crossed the multi-location threshold",
			Message: fmt.Sprintf("%s now seen at %d distinct locations",
				s.DeviceID, s.DistinctLocationCount),
			Metadata: meta,
		})
	}
}

// AttachProfiles enables the live watchlist check on stored sightings.
func (d *Dispatcher) AttachProfiles(lookup ProfileLookup) {
	d.profiles = lookup
}

// AttachSightings enables cross-mode detection against stored history.
func (d *Dispatcher) AttachSightings(h SightingHistory) {
	d.sightings = h
}

// SightingStored is the ingest hook: every freshly stored sighting is
// checked against the watchlist, the cross-mode tracker, and the linger
// tracker.
func (d *Dispatcher) SightingStored(ctx context.Context, s *models.DeviceSighting) {
	d.checkWatchlist(ctx, s)
	d.checkCrossMode(ctx, s)
	d.checkLinger(ctx, s)
}

// checkWatchlist fires immediately on a watchlisted device instead of
// waiting for the next scheduled sweep.
func (d *Dispatcher) checkWatchlist(ctx context.Context, s *models.DeviceSighting) {
	if d.profiles == nil || !d.profiles.IsWatchlisted(s.DeviceID) {
		return
	}
	profile, err := d.profiles.Get(s.DeviceID)
	if err != nil {
		logging.Warn().Err(err).Str("device_id", s.DeviceID).Msg("profile lookup failed")
		return
	}
	d.WatchlistHit(ctx, *profile, *s)
}

// WatchlistHit raises a critical alert for a watchlisted device sighting.
// Implements the sweeper's hit handler.
func (d *Dispatcher) WatchlistHit(ctx context.Context, profile models.DeviceProfile, latest models.DeviceSighting) {
	meta, _ := json.Marshal(map[string]interface{}{
		"cluster_id":      latest.ClusterID,
		"signal_strength": latest.SignalStrength,
		"seen_at":         latest.TimestampUTC,
	})
	d.Dispatch(ctx, models.AlertIntent{
		Kind:     models.AlertKindWatchlist,
		Severity: models.SeverityCritical,
		DeviceID: profile.DeviceID,
		Title:    fmt.Sprintf("Watchlisted device %s sighted", profile.DisplayName()),
		Message: fmt.Sprintf("%s seen at %s (%d dBm)",
			profile.DisplayName(), latest.TimestampUTC.Format(time.RFC3339), latest.SignalStrength),
		Metadata: meta,
	})
}

// HandleSessionEvent raises alerts for notable session transitions:
// autonomous activation and backend failures.
func (d *Dispatcher) HandleSessionEvent(ctx context.Context, ev models.SessionEvent) {
	switch {
	case ev.To == models.StateError:
		d.Dispatch(ctx, models.AlertIntent{
			Kind:     models.AlertKindSession,
			Severity: models.SeverityWarning,
			Title:    "Capture backend failure",
			Message:  ev.Reason,
		})
	case ev.Trigger == models.TriggerIdleAuto && ev.To == models.StateScanning:
		d.Dispatch(ctx, models.AlertIntent{
			Kind:     models.AlertKindSession,
			Severity: models.SeverityInfo,
			Title:    "Autonomous scan started",
			Message:  fmt.Sprintf("Idle trigger activated %s scanning", ev.Mode),
		})
	}
}
