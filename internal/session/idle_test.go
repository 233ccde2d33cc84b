// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileIdleProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	touched := time.Date(2026, 8, 1, 11, 48, 0, 0, time.UTC)
	if err := os.Chtimes(path, touched, touched); err != nil {
		t.Fatal(err)
	}

	p := NewFileIdleProvider(path)
	p.clock = func() time.Time { return touched.Add(12 * time.Minute) }

	idle, err := p.IdleFor(context.Background())
	if err != nil {
		t.Fatalf("IdleFor: %v", err)
	}
	if idle != 12*time.Minute {
		t.Errorf("idle = %v, want 12m", idle)
	}
}

func TestFileIdleProviderEmptyPathNeverIdle(t *testing.T) {
	p := NewFileIdleProvider("")
	idle, err := p.IdleFor(context.Background())
	if err != nil {
		t.Fatalf("IdleFor: %v", err)
	}
	if idle != 0 {
		t.Errorf("idle = %v, want 0", idle)
	}
}

func TestFileIdleProviderMissingFile(t *testing.T) {
	p := NewFileIdleProvider(filepath.Join(t.TempDir(), "never-created"))
	idle, err := p.IdleFor(context.Background())
	if err != nil {
		t.Fatalf("IdleFor: %v", err)
	}
	if idle != 0 {
		t.Errorf("idle = %v, want 0", idle)
	}
}

func TestFileIdleProviderFutureMtimeClampsToZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewFileIdleProvider(path)
	p.clock = func() time.Time { return time.Now().Add(-time.Hour) }

	idle, err := p.IdleFor(context.Background())
	if err != nil {
		t.Fatalf("IdleFor: %v", err)
	}
	if idle != 0 {
		t.Errorf("idle = %v, want 0 for future mtime", idle)
	}
}
