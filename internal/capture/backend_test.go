// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package capture

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/config"
)

func newBackendClient(t *testing.T, url, apiKey string) *BackendClient {
	t.Helper()
	client, err := NewBackendClient(&config.CaptureConfig{
		BackendURL:  url,
		APIKey:      apiKey,
		ReadTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewBackendClient: %v", err)
	}
	return client
}

func TestBackendPoll(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sightings" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"device_id":"AA:BB:CC:DD:EE:FF","timestamp_utc":"2026-08-01T12:00:00Z","signal_strength":-62},
			{"device_id":"11:22:33:44:55:66","timestamp_utc":"2026-08-01T12:00:05Z","signal_strength":-80,"ssids":["coffeeshop"]}
		]`))
	}))
	defer srv.Close()

	client := newBackendClient(t, srv.URL, "secret-key")
	records, err := client.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].DeviceID != "AA:BB:CC:DD:EE:FF" || records[0].SignalStrength != -62 {
		t.Errorf("record = %+v", records[0])
	}
	if len(records[1].SSIDs) != 1 || records[1].SSIDs[0] != "coffeeshop" {
		t.Errorf("ssids = %v", records[1].SSIDs)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestBackendPollEmptyIsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := newBackendClient(t, srv.URL, "")
	records, err := client.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %d, want 0", len(records))
	}
}

func TestBackendPollServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newBackendClient(t, srv.URL, "")
	if _, err := client.Poll(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("err = %v, want ErrBackendUnavailable", err)
	}
}

func TestBackendPollConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // port now refuses connections

	client := newBackendClient(t, srv.URL, "")
	if _, err := client.Poll(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("err = %v, want ErrBackendUnavailable", err)
	}
}

func TestBackendCurrentFix(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantFix bool
		wantLat float64
	}{
		{"with fix", `{"has_fix":true,"latitude":51.5074,"longitude":-0.1278}`, true, 51.5074},
		{"no fix", `{"has_fix":false}`, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/position" {
					http.NotFound(w, r)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := newBackendClient(t, srv.URL, "")
			lat, lon, err := client.CurrentFix(context.Background())
			if err != nil {
				t.Fatalf("CurrentFix: %v", err)
			}
			if tt.wantFix {
				if lat == nil || lon == nil {
					t.Fatal("expected a fix, got nils")
				}
				if *lat != tt.wantLat {
					t.Errorf("lat = %f, want %f", *lat, tt.wantLat)
				}
			} else if lat != nil || lon != nil {
				t.Errorf("expected no fix, got lat=%v lon=%v", lat, lon)
			}
		})
	}
}
