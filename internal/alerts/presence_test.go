// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

type fakeSightings struct {
	mu      sync.Mutex
	stored  []models.DeviceSighting
	queries int
}

func (f *fakeSightings) QuerySightings(_ context.Context, filter database.SightingFilter) ([]models.DeviceSighting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	var out []models.DeviceSighting
	for _, s := range f.stored {
		if filter.DeviceID != "" && s.DeviceID != filter.DeviceID {
			continue
		}
		if filter.Mode != "" && s.Mode != filter.Mode {
			continue
		}
		out = append(out, s)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func sightingAt(deviceID string, mode models.ScanMode, at time.Time) *models.DeviceSighting {
	return &models.DeviceSighting{
		DeviceID:       deviceID,
		TimestampUTC:   at,
		Mode:           mode,
		SignalStrength: -60,
		ClusterID:      "loc-1",
	}
}

func crossModeAlerts(n *fakeNotifier) []models.AlertIntent {
	var out []models.AlertIntent
	for _, intent := range n.sent {
		if intent.Kind == models.AlertKindCrossMode {
			out = append(out, intent)
		}
	}
	return out
}

func TestCrossModeFiresOnceWhenBothModesObserved(t *testing.T) {
	n := &fakeNotifier{name: "test"}
	d := newTestDispatcher(&fakeHistory{lastSeen: map[string]time.Time{}}, n)
	d.AttachSightings(&fakeSightings{})

	ctx := context.Background()
	now := time.Now().UTC()

	d.SightingStored(ctx, sightingAt("AA:BB:CC:DD:EE:FF", models.ModeRoam, now))
	if got := crossModeAlerts(n); len(got) != 0 {
		t.Fatalf("single-mode presence fired cross-mode alerts: %+v", got)
	}

	d.SightingStored(ctx, sightingAt("AA:BB:CC:DD:EE:FF", models.ModeHome, now.Add(time.Hour)))
	got := crossModeAlerts(n)
	if len(got) != 1 {
		t.Fatalf("cross-mode alerts = %d, want 1", len(got))
	}
	if got[0].Severity != models.SeverityCritical {
		t.Errorf("severity = %s, want critical", got[0].Severity)
	}

	// Further sightings in either mode stay quiet.
	d.SightingStored(ctx, sightingAt("AA:BB:CC:DD:EE:FF", models.ModeHome, now.Add(2*time.Hour)))
	d.SightingStored(ctx, sightingAt("AA:BB:CC:DD:EE:FF", models.ModeRoam, now.Add(3*time.Hour)))
	if got := crossModeAlerts(n); len(got) != 1 {
		t.Errorf("cross-mode re-fired: %d alerts", len(got))
	}
}

func TestCrossModeConsultsStoredHistory(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeSightings{stored: []models.DeviceSighting{
		*sightingAt("AA:BB:CC:DD:EE:FF", models.ModeRoam, now.Add(-24*time.Hour)),
	}}
	n := &fakeNotifier{name: "test"}
	d := newTestDispatcher(&fakeHistory{lastSeen: map[string]time.Time{}}, n)
	d.AttachSightings(store)

	// The roam half of the pair lives only in the store, as after a restart.
	d.SightingStored(context.Background(), sightingAt("AA:BB:CC:DD:EE:FF", models.ModeHome, now))

	if got := crossModeAlerts(n); len(got) != 1 {
		t.Fatalf("cross-mode alerts = %d, want 1", len(got))
	}
	if store.queries != 1 {
		t.Errorf("store queried %d times, want 1", store.queries)
	}
}

func TestCrossModeIgnoresDoorbellSightings(t *testing.T) {
	n := &fakeNotifier{name: "test"}
	d := newTestDispatcher(&fakeHistory{lastSeen: map[string]time.Time{}}, n)
	d.AttachSightings(&fakeSightings{})

	ctx := context.Background()
	now := time.Now().UTC()
	d.SightingStored(ctx, sightingAt("AA:BB:CC:DD:EE:FF", models.ModeRoam, now))
	d.SightingStored(ctx, sightingAt("AA:BB:CC:DD:EE:FF", models.ModeDoorbell, now.Add(time.Hour)))

	if got := crossModeAlerts(n); len(got) != 0 {
		t.Errorf("doorbell sighting completed a cross-mode pair: %+v", got)
	}
}

func TestLingerFiresOnceAfterThreshold(t *testing.T) {
	n := &fakeNotifier{name: "test"}
	d := newTestDispatcher(&fakeHistory{lastSeen: map[string]time.Time{}}, n) // 5m threshold

	ctx := context.Background()
	start := time.Now().UTC()

	d.SightingStored(ctx, sightingAt("11:22:33:44:55:66", models.ModeHome, start))
	d.SightingStored(ctx, sightingAt("11:22:33:44:55:66", models.ModeHome, start.Add(2*time.Minute)))
	if len(n.sent) != 0 {
		t.Fatalf("linger fired below threshold: %+v", n.sent)
	}

	d.SightingStored(ctx, sightingAt("11:22:33:44:55:66", models.ModeHome, start.Add(6*time.Minute)))
	if len(n.sent) != 1 || n.sent[0].Kind != models.AlertKindLinger {
		t.Fatalf("sent = %+v, want one linger alert", n.sent)
	}
	if n.sent[0].Severity != models.SeverityWarning {
		t.Errorf("severity = %s, want warning", n.sent[0].Severity)
	}

	d.SightingStored(ctx, sightingAt("11:22:33:44:55:66", models.ModeHome, start.Add(10*time.Minute)))
	if len(n.sent) != 1 {
		t.Errorf("linger re-fired: %d alerts", len(n.sent))
	}
}

func TestLingerSkipsLabeledDevices(t *testing.T) {
	n := &fakeNotifier{name: "test"}
	d := newTestDispatcher(&fakeHistory{lastSeen: map[string]time.Time{}}, n)
	d.AttachProfiles(&fakeProfiles{flagged: map[string]*models.DeviceProfile{
		"AA:BB:CC:DD:EE:FF": {DeviceID: "AA:BB:CC:DD:EE:FF", Label: "neighbor tv"},
	}})

	ctx := context.Background()
	start := time.Now().UTC()
	d.SightingStored(ctx, sightingAt("AA:BB:CC:DD:EE:FF", models.ModeHome, start))
	d.SightingStored(ctx, sightingAt("AA:BB:CC:DD:EE:FF", models.ModeHome, start.Add(time.Hour)))

	if len(n.sent) != 0 {
		t.Errorf("labeled device raised linger alerts: %+v", n.sent)
	}
}

func TestLingerStateClearsWhenDeviceGetsLabeled(t *testing.T) {
	n := &fakeNotifier{name: "test"}
	profiles := &fakeProfiles{flagged: map[string]*models.DeviceProfile{}}
	d := newTestDispatcher(&fakeHistory{lastSeen: map[string]time.Time{}}, n)
	d.AttachProfiles(profiles)

	ctx := context.Background()
	start := time.Now().UTC()
	d.SightingStored(ctx, sightingAt("11:22:33:44:55:66", models.ModeHome, start))

	// Operator labels the device before the threshold passes.
	profiles.flagged["11:22:33:44:55:66"] = &models.DeviceProfile{
		DeviceID: "11:22:33:44:55:66", Label: "my phone",
	}
	d.SightingStored(ctx, sightingAt("11:22:33:44:55:66", models.ModeHome, start.Add(10*time.Minute)))

	if len(n.sent) != 0 {
		t.Errorf("labeled device raised alerts from stale linger state: %+v", n.sent)
	}
}

func TestLingerIgnoresRoamSightings(t *testing.T) {
	n := &fakeNotifier{name: "test"}
	d := newTestDispatcher(&fakeHistory{lastSeen: map[string]time.Time{}}, n)

	ctx := context.Background()
	start := time.Now().UTC()
	d.SightingStored(ctx, sightingAt("11:22:33:44:55:66", models.ModeRoam, start))
	d.SightingStored(ctx, sightingAt("11:22:33:44:55:66", models.ModeRoam, start.Add(time.Hour)))

	if len(n.sent) != 0 {
		t.Errorf("roam sightings raised linger alerts: %+v", n.sent)
	}
}
