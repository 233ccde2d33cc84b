// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newBufferedSlog(buf *bytes.Buffer) *slog.Logger {
	return slog.New(&slogHandler{logger: zerolog.New(buf).Level(zerolog.TraceLevel)})
}

func TestSlogBridgeWritesToZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferedSlog(&buf)

	logger.Info("supervisor started", slog.String("supervisor", "sentinelwatch"))

	out := buf.String()
	if !strings.Contains(out, "supervisor started") {
		t.Errorf("message missing from output: %s", out)
	}
	if !strings.Contains(out, `"supervisor":"sentinelwatch"`) {
		t.Errorf("attribute missing from output: %s", out)
	}
	if !strings.Contains(out, `"level":"info"`) {
		t.Errorf("level missing from output: %s", out)
	}
}

func TestSlogBridgeLevels(t *testing.T) {
	tests := []struct {
		slogLevel slog.Level
		want      string
	}{
		{slog.LevelDebug, `"level":"debug"`},
		{slog.LevelInfo, `"level":"info"`},
		{slog.LevelWarn, `"level":"warn"`},
		{slog.LevelError, `"level":"error"`},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := newBufferedSlog(&buf)
		logger.Log(context.Background(), tt.slogLevel, "x")
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("level %v: output %s missing %s", tt.slogLevel, buf.String(), tt.want)
		}
	}
}

func TestSlogBridgeGroupsAndAttrTypes(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferedSlog(&buf).WithGroup("service").With(slog.String("name", "poller"))

	logger.Warn("restarting",
		slog.Int("restarts", 3),
		slog.Bool("terminal", false),
		slog.Duration("backoff", 15*time.Second),
	)

	out := buf.String()
	for _, want := range []string{
		`"service.name":"poller"`,
		`"service.restarts":3`,
		`"service.terminal":false`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %s missing %s", out, want)
		}
	}
}

func TestSlogBridgeEnabledRespectsZerologLevel(t *testing.T) {
	h := &slogHandler{logger: zerolog.New(&bytes.Buffer{}).Level(zerolog.InfoLevel)}

	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug enabled under info-level backend")
	}
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info disabled under info-level backend")
	}
}
