// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/metrics"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// CreateSession opens a new scan session. At most one session per mode may be
// active; a second activation returns ErrActiveSessionExists.
func (db *DB) CreateSession(ctx context.Context, s *models.ScanSession) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if s.SessionID == uuid.Nil {
		s.SessionID = uuid.New()
	}
	if s.StartTime.IsZero() {
		s.StartTime = time.Now().UTC()
	}

	// Anti-join on the open-session predicate enforces one active session
	// per mode without a partial unique index.
	query := `INSERT INTO scan_sessions (session_id, mode, trigger_reason, start_time, end_time)
	SELECT ?, ?, ?, ?, NULL
	WHERE NOT EXISTS (
		SELECT 1 FROM scan_sessions WHERE mode = ? AND end_time IS NULL
	)`

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, query,
		s.SessionID, string(s.Mode), string(s.Trigger), s.StartTime, string(s.Mode))
	metrics.ObserveDBQuery("insert", "scan_sessions", start, err)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrActiveSessionExists, s.Mode)
	}
	return nil
}

// EndSession closes an open session at endTime. Closing an already closed
// session returns ErrSessionClosed; a missing one ErrSessionNotFound.
func (db *DB) EndSession(ctx context.Context, sessionID uuid.UUID, endTime time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE scan_sessions SET end_time = ? WHERE session_id = ? AND end_time IS NULL`,
		endTime, sessionID)
	metrics.ObserveDBQuery("update", "scan_sessions", start, err)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := db.GetSession(ctx, sessionID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}
	return nil
}

// GetSession returns one session by ID.
func (db *DB) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.ScanSession, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT session_id, mode, trigger_reason, start_time, end_time
		FROM scan_sessions WHERE session_id = ?`, sessionID)

	s, err := scanSession(row)
	metrics.ObserveDBQuery("select", "scan_sessions", start, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ActiveSessionForMode returns the open session for a mode, or
// ErrSessionNotFound if none is open.
func (db *DB) ActiveSessionForMode(ctx context.Context, mode models.ScanMode) (*models.ScanSession, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT session_id, mode, trigger_reason, start_time, end_time
		FROM scan_sessions WHERE mode = ? AND end_time IS NULL`, string(mode))

	s, err := scanSession(row)
	metrics.ObserveDBQuery("select", "scan_sessions", start, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no active session for mode %s", ErrSessionNotFound, mode)
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return s, nil
}

// ListSessions returns sessions newest first. activeOnly restricts the result
// to open sessions.
func (db *DB) ListSessions(ctx context.Context, activeOnly bool, limit int) ([]models.ScanSession, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT session_id, mode, trigger_reason, start_time, end_time
	FROM scan_sessions`
	if activeOnly {
		query += ` WHERE end_time IS NULL`
	}
	query += ` ORDER BY start_time DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.ObserveDBQuery("select", "scan_sessions", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.ScanSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session rows iteration failed: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.ScanSession, error) {
	var s models.ScanSession
	var mode, trigger string
	if err := row.Scan(&s.SessionID, &mode, &trigger, &s.StartTime, &s.EndTime); err != nil {
		return nil, err
	}
	s.Mode = models.ScanMode(mode)
	s.Trigger = models.TriggerReason(trigger)
	return &s, nil
}
