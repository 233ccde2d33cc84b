// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/config"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	records []models.RawSighting
	err     error
	polls   int
}

func (f *fakeSource) Poll(_ context.Context) ([]models.RawSighting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeGPS struct {
	lat, lon *float64
	err      error
}

func (f *fakeGPS) CurrentFix(_ context.Context) (*float64, *float64, error) {
	return f.lat, f.lon, f.err
}

type fakeGates struct {
	mu    sync.Mutex
	open  map[models.ScanMode]uuid.UUID
	start time.Time
}

func (f *fakeGates) Gate(mode models.ScanMode) (uuid.UUID, time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.open[mode]
	return id, f.start, ok
}

type fakeForwarder struct {
	mu      sync.Mutex
	batches []Batch
}

func (f *fakeForwarder) Forward(_ context.Context, b Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	return nil
}

func (f *fakeForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeReporter struct {
	mu     sync.Mutex
	causes []error
}

func (f *fakeReporter) ReportBackendFailure(_ context.Context, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.causes = append(f.causes, cause)
	return nil
}

func (f *fakeReporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.causes)
}

func ptr[T any](v T) *T { return &v }

func testCaptureConfig() config.CaptureConfig {
	return config.CaptureConfig{
		PollInterval: 10 * time.Millisecond,
		ReadTimeout:  time.Second,
		RetryBudget:  2,
	}
}

func TestPollOnceSkipsWithoutGate(t *testing.T) {
	source := &fakeSource{records: []models.RawSighting{{DeviceID: "dev-a"}}}
	forward := &fakeForwarder{}
	p := NewPoller(source, nil, &fakeGates{open: map[models.ScanMode]uuid.UUID{}}, forward, nil, testCaptureConfig())

	p.pollOnce(context.Background())

	if source.polls != 0 {
		t.Error("poller must not touch the backend without an open gate")
	}
	if forward.count() != 0 {
		t.Error("nothing should be forwarded without an open gate")
	}
}

func TestPollOnceForwardsBatch(t *testing.T) {
	sessionID := uuid.New()
	source := &fakeSource{records: []models.RawSighting{
		{DeviceID: "dev-a", TimestampUTC: time.Now().UTC(), SignalStrength: -60},
	}}
	forward := &fakeForwarder{}
	started := time.Now().UTC().Add(-time.Minute)
	gates := &fakeGates{open: map[models.ScanMode]uuid.UUID{models.ModeRoam: sessionID}, start: started}

	p := NewPoller(source, nil, gates, forward, nil, testCaptureConfig())
	p.pollOnce(context.Background())

	if forward.count() != 1 {
		t.Fatalf("expected 1 forwarded batch, got %d", forward.count())
	}
	b := forward.batches[0]
	if b.SessionID != sessionID || b.Mode != models.ModeRoam || len(b.Records) != 1 {
		t.Errorf("unexpected batch: %+v", b)
	}
	if !b.StartTime.Equal(started) {
		t.Errorf("batch start = %s, want gate start %s", b.StartTime, started)
	}
}

func TestPollOnceSkipsEmptyBatch(t *testing.T) {
	source := &fakeSource{}
	forward := &fakeForwarder{}
	gates := &fakeGates{open: map[models.ScanMode]uuid.UUID{models.ModeHome: uuid.New()}}

	p := NewPoller(source, nil, gates, forward, nil, testCaptureConfig())
	p.pollOnce(context.Background())

	if source.polls != 1 {
		t.Error("expected the backend to be polled")
	}
	if forward.count() != 0 {
		t.Error("empty polls must not produce batches")
	}
}

func TestAttachFixFillsMissingCoordinates(t *testing.T) {
	source := &fakeSource{records: []models.RawSighting{
		{DeviceID: "no-fix", TimestampUTC: time.Now().UTC(), SignalStrength: -60},
		{DeviceID: "has-fix", TimestampUTC: time.Now().UTC(), SignalStrength: -60,
			Latitude: ptr(40.0), Longitude: ptr(-100.0)},
	}}
	forward := &fakeForwarder{}
	gates := &fakeGates{open: map[models.ScanMode]uuid.UUID{models.ModeRoam: uuid.New()}}
	gps := &fakeGPS{lat: ptr(45.52), lon: ptr(-122.68)}

	p := NewPoller(source, gps, gates, forward, nil, testCaptureConfig())
	p.pollOnce(context.Background())

	if forward.count() != 1 {
		t.Fatalf("expected 1 batch, got %d", forward.count())
	}
	records := forward.batches[0].Records
	if records[0].Latitude == nil || *records[0].Latitude != 45.52 {
		t.Error("missing coordinates not filled from gps provider")
	}
	if *records[1].Latitude != 40.0 {
		t.Error("backend-provided coordinates must not be overwritten")
	}
}

func TestRetryBudgetReportsFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	reporter := &fakeReporter{}
	gates := &fakeGates{open: map[models.ScanMode]uuid.UUID{models.ModeHome: uuid.New()}}

	cfg := testCaptureConfig() // RetryBudget: 2
	p := NewPoller(source, nil, gates, &fakeForwarder{}, reporter, cfg)

	p.pollOnce(context.Background())
	if reporter.count() != 0 {
		t.Fatal("one failure must not exhaust a budget of 2")
	}

	p.pollOnce(context.Background())
	if reporter.count() != 1 {
		t.Fatalf("expected failure reported after budget exhausted, got %d reports", reporter.count())
	}

	// The counter resets after reporting.
	p.pollOnce(context.Background())
	if reporter.count() != 1 {
		t.Error("failure counter must reset after a report")
	}
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	reporter := &fakeReporter{}
	gates := &fakeGates{open: map[models.ScanMode]uuid.UUID{models.ModeHome: uuid.New()}}

	p := NewPoller(source, nil, gates, &fakeForwarder{}, reporter, testCaptureConfig())

	p.pollOnce(context.Background())

	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()
	p.pollOnce(context.Background())

	source.mu.Lock()
	source.err = errors.New("connection refused")
	source.mu.Unlock()
	p.pollOnce(context.Background())

	if reporter.count() != 0 {
		t.Error("a successful poll must reset the consecutive failure count")
	}
}
