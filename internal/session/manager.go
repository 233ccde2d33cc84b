// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package session owns the scan-session lifecycle. A single goroutine holds
// the state machine (idle, armed, scanning, error); every mutation arrives as
// a command over a channel, so transitions are serialized without locks and
// races between the idle trigger, manual API calls, and backend failures
// cannot corrupt state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/config"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/metrics"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

var (
	// ErrAlreadyActive indicates an exclusive-mode session is already
	// running. Activation is not queued; the caller retries after the
	// current session ends.
	ErrAlreadyActive = errors.New("an exclusive scan session is already active")

	// ErrInvalidMode indicates an unknown scan mode was requested.
	ErrInvalidMode = errors.New("invalid scan mode")

	// ErrNotRunning indicates the manager's run loop is not serving.
	ErrNotRunning = errors.New("session manager is not running")
)

// Store is the persistence surface the manager needs.
type Store interface {
	CreateSession(ctx context.Context, s *models.ScanSession) error
	EndSession(ctx context.Context, sessionID uuid.UUID, endTime time.Time) error
	ListSessions(ctx context.Context, activeOnly bool, limit int) ([]models.ScanSession, error)
}

// IdleTimeProvider reports how long the operator's input devices have been
// quiet. Implementations wrap xprintidle, /dev/input timestamps, or a fake
// in tests.
type IdleTimeProvider interface {
	IdleFor(ctx context.Context) (time.Duration, error)
}

// Manager is the scan-session state machine.
type Manager struct {
	store Store
	idle  IdleTimeProvider
	cfg   config.SessionConfig
	clock func() time.Time

	cmds chan command

	subMu   sync.Mutex
	subs    map[int]chan models.SessionEvent
	nextSub int

	// gate is read by the ingest path on every batch, so it lives outside
	// the command loop behind its own lock.
	gateMu sync.RWMutex
	gate   map[models.ScanMode]gateEntry
}

// gateEntry is the capture-facing view of one open session.
type gateEntry struct {
	sessionID uuid.UUID
	startTime time.Time
}

type commandKind int

const (
	cmdActivate commandKind = iota
	cmdDeactivate
	cmdBackendFailure
	cmdQueryState
)

type command struct {
	kind      commandKind
	mode      models.ScanMode
	trigger   models.TriggerReason
	sessionID uuid.UUID
	failure   error
	reply     chan commandReply
}

type commandReply struct {
	session *models.ScanSession
	state   models.SessionState
	err     error
}

// NewManager creates a session manager. Serve must be running before
// Activate or Deactivate succeed.
func NewManager(store Store, idle IdleTimeProvider, cfg config.SessionConfig) *Manager {
	return &Manager{
		store: store,
		idle:  idle,
		cfg:   cfg,
		clock: func() time.Time { return time.Now().UTC() },
		cmds:  make(chan command),
		subs:  make(map[int]chan models.SessionEvent),
		gate:  make(map[models.ScanMode]gateEntry),
	}
}

// Serve runs the state machine until ctx is cancelled. Open sessions are
// closed on shutdown so no session outlives the process.
func (m *Manager) Serve(ctx context.Context) error {
	st := &loopState{
		state:  models.StateIdle,
		active: make(map[models.ScanMode]*models.ScanSession),
	}

	ticker := time.NewTicker(m.cfg.IdlePollInterval)
	defer ticker.Stop()

	logging.Info().Msg("session manager started")

	for {
		select {
		case <-ctx.Done():
			m.closeAllSessions(st)
			logging.Info().Msg("session manager stopped")
			return ctx.Err()

		case cmd := <-m.cmds:
			m.handleCommand(ctx, st, cmd)

		case <-ticker.C:
			m.tick(ctx, st)
		}
	}
}

type loopState struct {
	state      models.SessionState
	active     map[models.ScanMode]*models.ScanSession
	armedSince time.Time
	errorUntil time.Time
}

// Activate starts a scan session. Exclusive modes (home, roam, doorbell)
// reject activation while any exclusive session runs; watchlist sessions run
// concurrently with anything.
func (m *Manager) Activate(ctx context.Context, mode models.ScanMode, trigger models.TriggerReason) (*models.ScanSession, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	reply, err := m.send(ctx, command{kind: cmdActivate, mode: mode, trigger: trigger})
	if err != nil {
		return nil, err
	}
	return reply.session, reply.err
}

// Deactivate ends a running session by ID.
func (m *Manager) Deactivate(ctx context.Context, sessionID uuid.UUID) error {
	reply, err := m.send(ctx, command{kind: cmdDeactivate, sessionID: sessionID})
	if err != nil {
		return err
	}
	return reply.err
}

// ReportBackendFailure tells the manager the capture backend is down beyond
// its retry budget. Exclusive sessions end and the manager backs off in the
// error state before returning to idle.
func (m *Manager) ReportBackendFailure(ctx context.Context, cause error) error {
	_, err := m.send(ctx, command{kind: cmdBackendFailure, failure: cause})
	return err
}

// State returns the current machine state.
func (m *Manager) State(ctx context.Context) (models.SessionState, error) {
	reply, err := m.send(ctx, command{kind: cmdQueryState})
	if err != nil {
		return "", err
	}
	return reply.state, nil
}

// Gate returns the active session ID and start time for a mode. Ingest
// forwards a batch only when its mode's gate is open; the start time bounds
// sighting timestamps downstream.
func (m *Manager) Gate(mode models.ScanMode) (uuid.UUID, time.Time, bool) {
	m.gateMu.RLock()
	defer m.gateMu.RUnlock()
	entry, ok := m.gate[mode]
	return entry.sessionID, entry.startTime, ok
}

// Subscribe returns a channel of state-transition events and a cancel
// function. Slow subscribers drop events rather than block the machine.
func (m *Manager) Subscribe() (<-chan models.SessionEvent, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan models.SessionEvent, 16)
	m.subs[id] = ch
	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *Manager) send(ctx context.Context, cmd command) (commandReply, error) {
	cmd.reply = make(chan commandReply, 1)
	select {
	case m.cmds <- cmd:
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	case <-time.After(5 * time.Second):
		return commandReply{}, ErrNotRunning
	}
	select {
	case r := <-cmd.reply:
		return r, nil
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	}
}

func (m *Manager) handleCommand(ctx context.Context, st *loopState, cmd command) {
	switch cmd.kind {
	case cmdActivate:
		s, err := m.activate(ctx, st, cmd.mode, cmd.trigger)
		cmd.reply <- commandReply{session: s, err: err}
	case cmdDeactivate:
		cmd.reply <- commandReply{err: m.deactivate(ctx, st, cmd.sessionID)}
	case cmdBackendFailure:
		m.backendFailure(ctx, st, cmd.failure)
		cmd.reply <- commandReply{}
	case cmdQueryState:
		cmd.reply <- commandReply{state: st.state}
	}
}

func (m *Manager) activate(ctx context.Context, st *loopState, mode models.ScanMode, trigger models.TriggerReason) (*models.ScanSession, error) {
	if st.state == models.StateError {
		return nil, fmt.Errorf("capture backend is in error backoff until %s", st.errorUntil.Format(time.RFC3339))
	}

	if mode.Exclusive() {
		for activeMode := range st.active {
			if activeMode.Exclusive() {
				return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, activeMode)
			}
		}
	} else if _, ok := st.active[mode]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, mode)
	}

	s := &models.ScanSession{
		Mode:      mode,
		Trigger:   trigger,
		StartTime: m.clock(),
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		if errors.Is(err, database.ErrActiveSessionExists) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, mode)
		}
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	st.active[mode] = s
	m.openGate(mode, s.SessionID, s.StartTime)
	metrics.SessionsActive.Set(float64(len(st.active)))

	prev := st.state
	if mode.Exclusive() {
		st.state = models.StateScanning
	}
	m.emit(st, prev, st.state, models.SessionEvent{
		Mode:      mode,
		Trigger:   trigger,
		SessionID: s.SessionID,
		Reason:    "session activated",
	})

	logging.Info().
		Str("mode", string(mode)).
		Str("trigger", string(trigger)).
		Str("session_id", s.SessionID.String()).
		Msg("scan session activated")

	return s, nil
}

func (m *Manager) deactivate(ctx context.Context, st *loopState, sessionID uuid.UUID) error {
	var mode models.ScanMode
	var found *models.ScanSession
	for md, s := range st.active {
		if s.SessionID == sessionID {
			mode, found = md, s
			break
		}
	}
	if found == nil {
		return fmt.Errorf("%w: %s", database.ErrSessionNotFound, sessionID)
	}

	end := m.clock()
	if err := m.store.EndSession(ctx, sessionID, end); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	delete(st.active, mode)
	m.closeGate(mode)
	metrics.SessionsActive.Set(float64(len(st.active)))

	prev := st.state
	if mode.Exclusive() && !anyExclusive(st.active) {
		st.state = models.StateIdle
	}
	m.emit(st, prev, st.state, models.SessionEvent{
		Mode:      mode,
		SessionID: sessionID,
		Reason:    "session deactivated",
	})

	logging.Info().
		Str("mode", string(mode)).
		Str("session_id", sessionID.String()).
		Msg("scan session deactivated")

	return nil
}

func (m *Manager) backendFailure(ctx context.Context, st *loopState, cause error) {
	prev := st.state

	// Capture-holding sessions cannot outlive a dead backend. Watchlist
	// sweeps read the store only and keep running.
	for mode, s := range st.active {
		if !mode.Exclusive() {
			continue
		}
		if err := m.store.EndSession(ctx, s.SessionID, m.clock()); err != nil {
			logging.Error().Err(err).
				Str("session_id", s.SessionID.String()).
				Msg("failed to close session after backend failure")
		}
		delete(st.active, mode)
		m.closeGate(mode)
	}
	metrics.SessionsActive.Set(float64(len(st.active)))

	st.state = models.StateError
	st.errorUntil = m.clock().Add(m.cfg.ErrorBackoff)

	reason := "capture backend failed"
	if cause != nil {
		reason = fmt.Sprintf("capture backend failed: %v", cause)
	}
	m.emit(st, prev, st.state, models.SessionEvent{Reason: reason})

	logging.Error().Err(cause).
		Dur("backoff", m.cfg.ErrorBackoff).
		Msg("capture backend failure, entering error backoff")
}

// tick drives the idle-trigger transitions on every poll interval.
func (m *Manager) tick(ctx context.Context, st *loopState) {
	now := m.clock()

	if st.state == models.StateError {
		if now.After(st.errorUntil) {
			prev := st.state
			st.state = models.StateIdle
			m.emit(st, prev, st.state, models.SessionEvent{Reason: "error backoff elapsed"})
		}
		return
	}

	if m.idle == nil {
		return
	}

	idleFor, err := m.idle.IdleFor(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("idle time provider failed")
		return
	}

	switch st.state {
	case models.StateIdle:
		if idleFor >= m.cfg.IdleThreshold {
			st.state = models.StateArmed
			st.armedSince = now
			m.emit(st, models.StateIdle, models.StateArmed, models.SessionEvent{
				Reason: "idle threshold exceeded",
			})
		}

	case models.StateArmed:
		if idleFor < m.cfg.IdleThreshold {
			// Activity during the dwell: disarm without a session.
			st.state = models.StateIdle
			m.emit(st, models.StateArmed, models.StateIdle, models.SessionEvent{
				Reason: "activity resumed during dwell",
			})
			return
		}
		if now.Sub(st.armedSince) >= m.cfg.ArmedDwell {
			if _, err := m.activate(ctx, st, models.ModeHome, models.TriggerIdleAuto); err != nil {
				logging.Warn().Err(err).Msg("autonomous activation failed")
				st.state = models.StateIdle
			}
		}

	case models.StateScanning:
		// Autonomous sessions end when the operator is back; manual
		// sessions only end on explicit deactivation.
		if idleFor < m.cfg.IdleThreshold {
			for _, s := range st.active {
				if s.Trigger == models.TriggerIdleAuto {
					if err := m.deactivate(ctx, st, s.SessionID); err != nil {
						logging.Warn().Err(err).Msg("failed to end autonomous session")
					}
					break
				}
			}
		}
	}
}

func (m *Manager) closeAllSessions(st *loopState) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for mode, s := range st.active {
		if err := m.store.EndSession(ctx, s.SessionID, m.clock()); err != nil {
			logging.Error().Err(err).
				Str("session_id", s.SessionID.String()).
				Msg("failed to close session on shutdown")
		}
		delete(st.active, mode)
		m.closeGate(mode)
	}
	metrics.SessionsActive.Set(0)
}

func (m *Manager) openGate(mode models.ScanMode, id uuid.UUID, start time.Time) {
	m.gateMu.Lock()
	defer m.gateMu.Unlock()
	m.gate[mode] = gateEntry{sessionID: id, startTime: start}
}

func (m *Manager) closeGate(mode models.ScanMode) {
	m.gateMu.Lock()
	defer m.gateMu.Unlock()
	delete(m.gate, mode)
}

func (m *Manager) emit(st *loopState, from, to models.SessionState, ev models.SessionEvent) {
	ev.From = from
	ev.To = to
	ev.Timestamp = m.clock()
	metrics.SessionTransitions.WithLabelValues(string(from), string(to)).Inc()

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			// Dropping beats blocking the state machine.
		}
	}
}

func anyExclusive(active map[models.ScanMode]*models.ScanSession) bool {
	for mode := range active {
		if mode.Exclusive() {
			return true
		}
	}
	return false
}
