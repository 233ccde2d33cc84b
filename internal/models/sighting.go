// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package models defines the core data types shared across SentinelWatch
// components: device sightings, scan sessions, location clusters, suspect
// scores, and alert records.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanMode identifies which scanning mode produced a sighting.
type ScanMode string

const (
	// ModeHome profiles devices near the home location.
	ModeHome ScanMode = "home"

	// ModeRoam tracks devices encountered while moving.
	ModeRoam ScanMode = "roam"

	// ModeDoorbell watches for arrivals and departures in close range.
	ModeDoorbell ScanMode = "doorbell"

	// ModeWatchlist is a scheduled batch sweep over stored sightings.
	// Unlike the other modes it does not hold the capture backend.
	ModeWatchlist ScanMode = "watchlist"
)

// Valid reports whether m is a known scan mode.
func (m ScanMode) Valid() bool {
	switch m {
	case ModeHome, ModeRoam, ModeDoorbell, ModeWatchlist:
		return true
	}
	return false
}

// Exclusive reports whether this mode holds the capture backend and is
// therefore mutually exclusive with the other capture-holding modes.
func (m ScanMode) Exclusive() bool {
	return m == ModeHome || m == ModeRoam || m == ModeDoorbell
}

// TriggerReason records why a scan session was started.
type TriggerReason string

const (
	TriggerManual             TriggerReason = "manual"
	TriggerIdleAuto           TriggerReason = "idle-auto"
	TriggerWatchlistScheduled TriggerReason = "watchlist-scheduled"
)

// RawSighting is one observation as delivered by the capture backend.
// Coordinates are pointers because capture can occur without a GPS fix.
// This is untrusted input; the ingest pipeline validates it before it
// becomes a DeviceSighting.
type RawSighting struct {
	DeviceID       string     `json:"device_id" validate:"required,max=64"`
	TimestampUTC   time.Time  `json:"timestamp_utc" validate:"required"`
	SignalStrength int        `json:"signal_strength" validate:"gte=-120,lte=0"`
	Latitude       *float64   `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude      *float64   `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	SSIDs          []string   `json:"ssids,omitempty"`
	Manufacturer   string     `json:"manufacturer,omitempty"`
	Fingerprint    string     `json:"fingerprint,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
}

// DeviceSighting is one validated, stored observation of a wireless
// identifier at a point in time and space. Sightings are immutable once
// stored; (DeviceID, TimestampUTC, SessionID) uniquely identifies one.
type DeviceSighting struct {
	DeviceID       string    `json:"device_id"`
	TimestampUTC   time.Time `json:"timestamp_utc"`
	SessionID      uuid.UUID `json:"session_id"`
	Mode           ScanMode  `json:"mode"`
	SignalStrength int       `json:"signal_strength"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	ClusterID      string    `json:"cluster_id"`
	Fingerprint    string    `json:"fingerprint,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HasFix reports whether the sighting carries a usable GPS fix.
func (s *DeviceSighting) HasFix() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// ScanSession is one contiguous period of active scanning. At most one
// session per mode is active (EndTime nil) at a time.
type ScanSession struct {
	SessionID uuid.UUID     `json:"session_id"`
	Mode      ScanMode      `json:"mode"`
	Trigger   TriggerReason `json:"trigger_reason"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
}

// Active reports whether the session is still open.
func (s *ScanSession) Active() bool {
	return s.EndTime == nil
}

// UnknownClusterID is the sentinel cluster for sightings without a GPS fix.
// Such sightings count toward total encounters but never toward the distinct
// known-location count used for multi-location scoring.
const UnknownClusterID = "unknown"

// LocationCluster is a stable identifier for "a place", derived from
// clustering GPS fixes. The centroid is an incremental running mean of
// member fixes and the radius is bounded by configuration.
type LocationCluster struct {
	ClusterID    string    `json:"cluster_id"`
	CentroidLat  float64   `json:"centroid_lat"`
	CentroidLon  float64   `json:"centroid_lon"`
	RadiusMeters float64   `json:"radius_meters"`
	FixCount     int64     `json:"fix_count"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// SignalTrend classifies recent signal-strength movement for a device.
type SignalTrend string

const (
	TrendApproaching SignalTrend = "approaching"
	TrendReceding    SignalTrend = "receding"
	TrendStable      SignalTrend = "stable"
	TrendUnknown     SignalTrend = "unknown"
)

// SuspectScore is the derived, recomputable ranking output of the
// correlation engine. It is cached, never treated as ground truth.
type SuspectScore struct {
	DeviceID              string      `json:"device_id"`
	DistinctLocationCount int         `json:"distinct_location_count"`
	TotalEncounters       int64       `json:"total_encounters"`
	FirstEncounter        time.Time   `json:"first_encounter"`
	LastEncounter         time.Time   `json:"last_encounter"`
	Score                 float64     `json:"score"`
	Rank                  int         `json:"rank"`
	SignalTrend           SignalTrend `json:"signal_trend"`
}

// SessionState is the session manager's externally visible state.
type SessionState string

const (
	// StateIdle means no scanning activity and no pending idle trigger.
	StateIdle SessionState = "idle"

	// StateArmed means the idle threshold was exceeded and the manager is
	// waiting out the confirmation dwell before autonomous scanning starts.
	StateArmed SessionState = "armed"

	// StateScanning means at least one capture-holding session is active.
	StateScanning SessionState = "scanning"

	// StateError means the capture backend failed beyond the retry budget.
	// The manager backs off and returns to idle once the backoff elapses.
	StateError SessionState = "error"
)

// SessionEvent is one state transition emitted by the session manager.
type SessionEvent struct {
	From      SessionState  `json:"from"`
	To        SessionState  `json:"to"`
	Mode      ScanMode      `json:"mode,omitempty"`
	Trigger   TriggerReason `json:"trigger_reason,omitempty"`
	SessionID uuid.UUID     `json:"session_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
