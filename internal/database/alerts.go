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

// InsertAlertRecord appends one dispatched alert to the history, including
// its delivery outcome.
func (db *DB) InsertAlertRecord(ctx context.Context, rec *models.AlertRecord) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO alert_history (
		id, kind, severity, device_id, title, message, metadata,
		channel, delivered, delivery_error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, query,
		rec.ID, string(rec.Kind), string(rec.Severity), rec.DeviceID,
		rec.Title, rec.Message, string(rec.Metadata),
		rec.Channel, rec.Delivered, rec.DeliverErr, rec.CreatedAt)
	metrics.ObserveDBQuery("insert", "alert_history", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert alert record: %w", err)
	}
	return nil
}

// ListAlerts returns alert history, newest first.
func (db *DB) ListAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, kind, severity, device_id, title, message, metadata,
		channel, delivered, delivery_error, created_at
	FROM alert_history ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.ObserveDBQuery("select", "alert_history", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []models.AlertRecord
	for rows.Next() {
		var rec models.AlertRecord
		var kind, severity, metadata string
		if err := rows.Scan(
			&rec.ID, &kind, &severity, &rec.DeviceID, &rec.Title, &rec.Message,
			&metadata, &rec.Channel, &rec.Delivered, &rec.DeliverErr, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert record: %w", err)
		}
		rec.Kind = models.AlertKind(kind)
		rec.Severity = models.Severity(severity)
		if metadata != "" {
			rec.Metadata = []byte(metadata)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("alert rows iteration failed: %w", err)
	}
	return out, nil
}

// LastAlertTime returns when the most recent alert of a kind fired for a
// device. Hydrates the dispatcher's cooldown map after a restart so a reboot
// does not reset cooldown windows.
func (db *DB) LastAlertTime(ctx context.Context, deviceID string, kind models.AlertKind) (time.Time, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var ts time.Time
	start := time.Now()
	err := db.conn.QueryRowContext(ctx,
		`SELECT created_at FROM alert_history
		WHERE device_id = ? AND kind = ?
		ORDER BY created_at DESC LIMIT 1`,
		deviceID, string(kind)).Scan(&ts)
	metrics.ObserveDBQuery("select", "alert_history", start, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to query last alert time: %w", err)
	}
	return ts, nil
}
