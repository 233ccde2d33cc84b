// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitFiltersBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Debug().Msg("too quiet")
	Info().Msg("loud enough")

	out := buf.String()
	if strings.Contains(out, "too quiet") {
		t.Errorf("debug message leaked through info-level logger: %s", out)
	}
	if !strings.Contains(out, "loud enough") {
		t.Errorf("info message missing: %s", out)
	}
}

func TestInitDoesNotLevelOtherLoggers(t *testing.T) {
	Init(Config{Level: "info", Format: "json", Output: &bytes.Buffer{}})
	defer Init(DefaultConfig())

	// Loggers with their own level must keep emitting below the global
	// logger's threshold.
	var buf bytes.Buffer
	other := zerolog.New(&buf).Level(zerolog.TraceLevel)
	other.Debug().Msg("still here")

	if !strings.Contains(buf.String(), "still here") {
		t.Errorf("independent trace-level logger was filtered: %q", buf.String())
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
