// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

type fakeEngine struct {
	mu         sync.Mutex
	recomputes int
	err        error
	ranked     []models.SuspectScore
}

func (f *fakeEngine) Recompute(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recomputes++
	return f.err
}

func (f *fakeEngine) Ranked() []models.SuspectScore {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ranked
}

func (f *fakeEngine) recomputeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recomputes
}

type fakeEvaluator struct {
	mu    sync.Mutex
	calls [][]models.SuspectScore
}

func (f *fakeEvaluator) EvaluateSuspects(_ context.Context, ranked []models.SuspectScore) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ranked)
}

func (f *fakeEvaluator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSuspectBroadcaster struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSuspectBroadcaster) BroadcastSuspects(_ []models.SuspectScore) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func TestRecomputeRunsImmediatelyAndOnTicks(t *testing.T) {
	engine := &fakeEngine{ranked: []models.SuspectScore{{DeviceID: "AA:AA:AA:AA:AA:AA", Rank: 1}}}
	evaluator := &fakeEvaluator{}
	broadcaster := &fakeSuspectBroadcaster{}

	svc := NewRecomputeService(engine, evaluator, broadcaster, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Serve(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && engine.recomputeCount() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if engine.recomputeCount() < 3 {
		t.Fatalf("recomputes = %d, want >= 3", engine.recomputeCount())
	}
	if evaluator.callCount() < 3 {
		t.Errorf("evaluator calls = %d, want >= 3", evaluator.callCount())
	}
}

func TestRecomputeFailureSkipsDownstream(t *testing.T) {
	engine := &fakeEngine{err: errors.New("db gone")}
	evaluator := &fakeEvaluator{}

	svc := NewRecomputeService(engine, evaluator, nil, time.Hour)
	svc.runOnce(context.Background())

	if engine.recomputeCount() != 1 {
		t.Fatalf("recomputes = %d", engine.recomputeCount())
	}
	if evaluator.callCount() != 0 {
		t.Error("evaluator called despite recompute failure")
	}
}

type fakePruner struct {
	mu       sync.Mutex
	calls    int
	policies []database.PrunePolicy
	removed  int64
	err      error
}

func (f *fakePruner) PruneSightings(_ context.Context, policy database.PrunePolicy) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.policies = append(f.policies, policy)
	return f.removed, f.err
}

func (f *fakePruner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPruneRunsOnCadence(t *testing.T) {
	pruner := &fakePruner{removed: 7}
	policy := database.PrunePolicy{MaxAge: 30 * 24 * time.Hour, MaxRows: 1000}

	svc := NewPruneService(pruner, policy, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Serve(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && pruner.callCount() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if pruner.callCount() < 2 {
		t.Fatalf("prune calls = %d, want >= 2", pruner.callCount())
	}
	if pruner.policies[0].MaxRows != 1000 {
		t.Errorf("policy = %+v", pruner.policies[0])
	}
}

type fakeEventSource struct {
	ch chan models.SessionEvent
}

func (f *fakeEventSource) Subscribe() (<-chan models.SessionEvent, func()) {
	return f.ch, func() {}
}

type fakeEventSink struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (f *fakeEventSink) HandleSessionEvent(_ context.Context, ev models.SessionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeEventSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeEventBroadcaster struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (f *fakeEventBroadcaster) BroadcastSessionEvent(ev models.SessionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func TestSessionEventsFanOut(t *testing.T) {
	source := &fakeEventSource{ch: make(chan models.SessionEvent, 4)}
	sink := &fakeEventSink{}
	broadcaster := &fakeEventBroadcaster{}

	svc := NewSessionEventsService(source, sink, broadcaster)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Serve(ctx)
	}()

	source.ch <- models.SessionEvent{From: models.StateIdle, To: models.StateScanning, Mode: models.ModeHome}
	source.ch <- models.SessionEvent{From: models.StateScanning, To: models.StateError, Reason: "backend down"}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sink.count() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if sink.count() != 2 {
		t.Fatalf("sink events = %d, want 2", sink.count())
	}
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if len(broadcaster.events) != 2 {
		t.Errorf("broadcast events = %d, want 2", len(broadcaster.events))
	}
	if broadcaster.events[1].Reason != "backend down" {
		t.Errorf("event = %+v", broadcaster.events[1])
	}
}

func TestSessionEventsStopsOnClosedSource(t *testing.T) {
	source := &fakeEventSource{ch: make(chan models.SessionEvent)}
	svc := NewSessionEventsService(source, nil, nil)

	done := make(chan error, 1)
	go func() { done <- svc.Serve(context.Background()) }()

	close(source.ch)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v, want nil on closed source", err)
		}
	case <-time.After(time.Second):
		t.Fatal("service did not stop after source closed")
	}
}

type blockingServer struct {
	started chan struct{}
}

func (b *blockingServer) Serve(ctx context.Context) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestRunner(t *testing.T) {
	srv := &blockingServer{started: make(chan struct{})}
	r := NewRunner("capture-poller", srv)

	if r.String() != "capture-poller" {
		t.Errorf("name = %q", r.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	select {
	case <-srv.started:
	case <-time.After(time.Second):
		t.Fatal("wrapped server never started")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
