// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// checkCrossMode raises a critical alert the first time a device shows up
// both while roaming and at the home location. A device that follows the
// operator home is the strongest tail signal the system produces.
func (d *Dispatcher) checkCrossMode(ctx context.Context, s *models.DeviceSighting) {
	var other models.ScanMode
	switch s.Mode {
	case models.ModeHome:
		other = models.ModeRoam
	case models.ModeRoam:
		other = models.ModeHome
	default:
		return
	}

	d.mu.Lock()
	if _, done := d.crossAlerted[s.DeviceID]; done {
		d.mu.Unlock()
		return
	}
	seen := d.modesSeen[s.DeviceID]
	if seen == nil {
		seen = make(map[models.ScanMode]struct{})
		d.modesSeen[s.DeviceID] = seen
	}
	_, sameSeen := seen[s.Mode]
	_, otherSeen := seen[other]
	seen[s.Mode] = struct{}{}
	d.mu.Unlock()

	if !otherSeen {
		if sameSeen {
			return
		}
		// First in-memory sighting of this device in this mode: consult
		// stored history for prior presence in the other mode, so a
		// restart does not forget half of a cross-mode pair.
		if d.sightings == nil {
			return
		}
		prior, err := d.sightings.QuerySightings(ctx, database.SightingFilter{
			DeviceID: s.DeviceID,
			Mode:     other,
			Limit:    1,
		})
		if err != nil {
			logging.Warn().Err(err).
				Str("device_id", s.DeviceID).
				Msg("cross-mode history lookup failed")
			return
		}
		if len(prior) == 0 {
			return
		}
		d.mu.Lock()
		seen[other] = struct{}{}
		d.mu.Unlock()
	}

	d.mu.Lock()
	d.crossAlerted[s.DeviceID] = struct{}{}
	d.mu.Unlock()

	meta, _ := json.Marshal(map[string]interface{}{
		"current_mode": s.Mode,
		"other_mode":   other,
		"cluster_id":   s.ClusterID,
		"seen_at":      s.TimestampUTC,
	})
	d.Dispatch(ctx, models.AlertIntent{
		Kind:     models.AlertKindCrossMode,
		Severity: models.SeverityCritical,
		DeviceID: s.DeviceID,
		Title:    "Device seen both roaming and at home",
		Message: fmt.Sprintf("%s was seen while roaming and at your home location. Potential surveillance.",
			s.DeviceID),
		Metadata: meta,
	})
}

// checkLinger tracks unlabeled devices near the home location and raises a
// warning once one has kept appearing past the linger threshold. Labeling
// the device clears its linger state.
func (d *Dispatcher) checkLinger(ctx context.Context, s *models.DeviceSighting) {
	if d.linger <= 0 {
		return
	}
	if s.Mode != models.ModeHome && s.Mode != models.ModeDoorbell {
		return
	}

	if d.isLabeled(s.DeviceID) {
		d.mu.Lock()
		delete(d.lingerFirst, s.DeviceID)
		delete(d.lingerAlerted, s.DeviceID)
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	first, ok := d.lingerFirst[s.DeviceID]
	if !ok {
		d.lingerFirst[s.DeviceID] = s.TimestampUTC
		d.mu.Unlock()
		return
	}
	if _, done := d.lingerAlerted[s.DeviceID]; done {
		d.mu.Unlock()
		return
	}
	elapsed := s.TimestampUTC.Sub(first)
	if elapsed < d.linger {
		d.mu.Unlock()
		return
	}
	d.lingerAlerted[s.DeviceID] = struct{}{}
	d.mu.Unlock()

	meta, _ := json.Marshal(map[string]interface{}{
		"first_seen":      first,
		"last_seen":       s.TimestampUTC,
		"linger_duration": elapsed.String(),
		"cluster_id":      s.ClusterID,
	})
	d.Dispatch(ctx, models.AlertIntent{
		Kind:     models.AlertKindLinger,
		Severity: models.SeverityWarning,
		DeviceID: s.DeviceID,
		Title:    "Unlabeled device lingering near home",
		Message: fmt.Sprintf("%s has been present for %s without a label",
			s.DeviceID, elapsed.Round(time.Second)),
		Metadata: meta,
	})
}

func (d *Dispatcher) isLabeled(deviceID string) bool {
	if d.profiles == nil {
		return false
	}
	p, err := d.profiles.Get(deviceID)
	return err == nil && p.Label != ""
}
