// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package session

import (
	"context"
	"fmt"
	"os"
	"time"
)

// FileIdleProvider derives operator idle time from the modification time of
// an activity file. A desktop agent, cron job, or login hook touches the file
// on user activity; idle time is now minus its mtime.
//
// An empty path disables the autonomous idle trigger: IdleFor always reports
// zero, so the manager never arms on its own.
type FileIdleProvider struct {
	path  string
	clock func() time.Time
}

// NewFileIdleProvider builds a provider for the given activity file path.
func NewFileIdleProvider(path string) *FileIdleProvider {
	return &FileIdleProvider{path: path, clock: time.Now}
}

// IdleFor reports how long the activity file has been untouched. A missing
// file also reports zero idle: no agent is writing it, so autonomous
// activation would be guesswork.
func (p *FileIdleProvider) IdleFor(_ context.Context) (time.Duration, error) {
	if p.path == "" {
		return 0, nil
	}

	info, err := os.Stat(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to stat activity file: %w", err)
	}

	idle := p.clock().Sub(info.ModTime())
	if idle < 0 {
		return 0, nil
	}
	return idle, nil
}
