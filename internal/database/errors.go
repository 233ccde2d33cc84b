// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package database

import "errors"

var (
	// ErrDuplicateSighting indicates an insert was dropped because a
	// sighting with the same (device_id, timestamp_utc, session_id)
	// already exists. Re-delivery is expected, so callers usually count
	// this rather than treat it as a failure.
	ErrDuplicateSighting = errors.New("duplicate sighting")

	// ErrSessionNotFound indicates the referenced scan session does not
	// exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed indicates the referenced scan session has already
	// ended.
	ErrSessionClosed = errors.New("session already closed")

	// ErrActiveSessionExists indicates a session for the requested mode is
	// already open. At most one session per mode is active at a time.
	ErrActiveSessionExists = errors.New("active session already exists for mode")
)
