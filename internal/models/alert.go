// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package models

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// AlertKind identifies the class of event that produced an alert.
type AlertKind string

const (
	// AlertKindSuspect fires when a device enters the top ranks of the
	// suspect list.
	AlertKindSuspect AlertKind = "suspect_ranked"

	// AlertKindMultiLocation fires the first time a device crosses the
	// two-known-locations threshold.
	AlertKindMultiLocation AlertKind = "multi_location"

	// AlertKindWatchlist fires when a watchlisted device is sighted.
	AlertKindWatchlist AlertKind = "watchlist_hit"

	// AlertKindSession fires on notable session transitions, such as
	// autonomous scan activation or a backend failure.
	AlertKindSession AlertKind = "session_transition"

	// AlertKindLinger fires when an unlabeled device keeps showing up near
	// the home location past the linger threshold.
	AlertKindLinger AlertKind = "linger"

	// AlertKindCrossMode fires the first time a device is seen both while
	// roaming and at the home location.
	AlertKindCrossMode AlertKind = "cross_mode"
)

// Severity indicates the severity level of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertIntent is the dispatcher's output: a fully formed notification
// payload handed to external delivery channels. Delivery mechanics and
// credentials live outside the core.
type AlertIntent struct {
	ID        uuid.UUID       `json:"id"`
	Kind      AlertKind       `json:"kind"`
	Severity  Severity        `json:"severity"`
	DeviceID  string          `json:"device_id,omitempty"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AlertRecord is the persisted history entry for a dispatched alert,
// including per-channel delivery outcomes.
type AlertRecord struct {
	ID         uuid.UUID       `json:"id"`
	Kind       AlertKind       `json:"kind"`
	Severity   Severity        `json:"severity"`
	DeviceID   string          `json:"device_id,omitempty"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Channel    string          `json:"channel,omitempty"`
	Delivered  bool            `json:"delivered"`
	DeliverErr string          `json:"delivery_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DeviceProfile is the operator-maintained record for a known device:
// label, grouping, notes, and the watchlist flag. Profiles live in the
// watchlist store, not the sighting store.
type DeviceProfile struct {
	DeviceID     string    `json:"device_id"`
	Label        string    `json:"label,omitempty"`
	Group        string    `json:"group,omitempty"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Watchlisted  bool      `json:"watchlisted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName returns the label when set, otherwise the device identifier.
func (p *DeviceProfile) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	return p.DeviceID
}
