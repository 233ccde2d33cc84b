// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package capture polls the packet-capture backend for device sightings and
// forwards them into the ingest pipeline while a capture-holding session is
// active. The backend is an interface: Kismet, airodump exports, or a fake
// all look the same from here.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// ErrBackendUnavailable indicates the capture backend could not be reached.
var ErrBackendUnavailable = errors.New("capture backend unavailable")

// Source is a packet-capture backend delivering raw sightings.
type Source interface {
	// Poll returns sightings observed since the previous call. An empty
	// slice is a healthy quiet interval, not an error.
	Poll(ctx context.Context) ([]models.RawSighting, error)
}

// GPSProvider reports the current position, if any. A nil fix is normal:
// indoors, cold start, or no GPS hardware at all.
type GPSProvider interface {
	CurrentFix(ctx context.Context) (lat, lon *float64, err error)
}

// Batch is one poll's worth of sightings bound to the session that captured
// them. StartTime carries the session's start so ingest can reject records
// timestamped before the session began.
type Batch struct {
	SessionID uuid.UUID            `json:"session_id"`
	Mode      models.ScanMode      `json:"mode"`
	StartTime time.Time            `json:"start_time"`
	Records   []models.RawSighting `json:"records"`
	PolledAt  time.Time            `json:"polled_at"`
}
