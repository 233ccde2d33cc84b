// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/config"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/session"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/watchlist"
)

type fakeStore struct {
	sightings []models.DeviceSighting
	sessions  []models.ScanSession
	clusters  []models.LocationCluster
	alerts    []models.AlertRecord
	total     int64
	pingErr   error

	lastFilter database.SightingFilter
}

func (f *fakeStore) QuerySightings(_ context.Context, filter database.SightingFilter) ([]models.DeviceSighting, error) {
	f.lastFilter = filter
	return f.sightings, nil
}

func (f *fakeStore) CountSightings(_ context.Context) (int64, error) { return f.total, nil }

func (f *fakeStore) ListSessions(_ context.Context, activeOnly bool, _ int) ([]models.ScanSession, error) {
	if activeOnly {
		var out []models.ScanSession
		for _, s := range f.sessions {
			if s.Active() {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return f.sessions, nil
}

func (f *fakeStore) ListClusters(_ context.Context) ([]models.LocationCluster, error) {
	return f.clusters, nil
}

func (f *fakeStore) ListAlerts(_ context.Context, _ int) ([]models.AlertRecord, error) {
	return f.alerts, nil
}

func (f *fakeStore) Ping(_ context.Context) error { return f.pingErr }

type fakeSessionController struct {
	state       models.SessionState
	activateErr error
	activated   []models.ScanMode
	deactivated []uuid.UUID
}

func (f *fakeSessionController) Activate(_ context.Context, mode models.ScanMode, trigger models.TriggerReason) (*models.ScanSession, error) {
	if f.activateErr != nil {
		return nil, f.activateErr
	}
	f.activated = append(f.activated, mode)
	return &models.ScanSession{SessionID: uuid.New(), Mode: mode, Trigger: trigger, StartTime: time.Now().UTC()}, nil
}

func (f *fakeSessionController) Deactivate(_ context.Context, id uuid.UUID) error {
	f.deactivated = append(f.deactivated, id)
	return nil
}

func (f *fakeSessionController) State(_ context.Context) (models.SessionState, error) {
	return f.state, nil
}

type fakeSuspects struct {
	ranked  []models.SuspectScore
	lastRun time.Time
}

func (f *fakeSuspects) Ranked() []models.SuspectScore { return f.ranked }
func (f *fakeSuspects) LastRun() time.Time            { return f.lastRun }

type fakeProfiles struct {
	byID map[string]*models.DeviceProfile
}

func (f *fakeProfiles) Upsert(p *models.DeviceProfile) error {
	f.byID[p.DeviceID] = p
	return nil
}

func (f *fakeProfiles) Get(deviceID string) (*models.DeviceProfile, error) {
	if p, ok := f.byID[deviceID]; ok {
		return p, nil
	}
	return nil, watchlist.ErrProfileNotFound
}

func (f *fakeProfiles) List(watchlistedOnly bool) ([]models.DeviceProfile, error) {
	var out []models.DeviceProfile
	for _, p := range f.byID {
		if watchlistedOnly && !p.Watchlisted {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProfiles) SetWatchlisted(deviceID string, watchlisted bool) (*models.DeviceProfile, error) {
	p, ok := f.byID[deviceID]
	if !ok {
		p = &models.DeviceProfile{DeviceID: deviceID}
		f.byID[deviceID] = p
	}
	p.Watchlisted = watchlisted
	return p, nil
}

func (f *fakeProfiles) Delete(deviceID string) error {
	delete(f.byID, deviceID)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.API.DefaultPageSize = 50
	cfg.API.MaxPageSize = 500
	cfg.API.CORSOrigins = []string{"*"}
	cfg.Server.Port = 8090
	return cfg
}

type fixture struct {
	store    *fakeStore
	sessions *fakeSessionController
	suspects *fakeSuspects
	profiles *fakeProfiles
	srv      *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &fakeStore{},
		sessions: &fakeSessionController{state: models.StateIdle},
		suspects: &fakeSuspects{},
		profiles: &fakeProfiles{byID: map[string]*models.DeviceProfile{}},
	}
	handler := NewHandler(f.store, f.sessions, f.suspects, f.profiles, nil, testConfig())
	f.srv = httptest.NewServer(NewRouter(handler).Setup())
	t.Cleanup(f.srv.Close)
	return f
}

func decodeResponse(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.store.total = 1234
	f.sessions.state = models.StateScanning
	f.suspects.ranked = []models.SuspectScore{{DeviceID: "AA:BB:CC:DD:EE:FF", Rank: 1}}
	f.suspects.lastRun = time.Now().UTC()

	resp, err := http.Get(f.srv.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK || !body.Success {
		t.Fatalf("status = %d, success = %v", resp.StatusCode, body.Success)
	}

	data := body.Data.(map[string]interface{})
	if data["state"] != "scanning" {
		t.Errorf("state = %v", data["state"])
	}
	if data["total_sightings"].(float64) != 1234 {
		t.Errorf("total_sightings = %v", data["total_sightings"])
	}
	if data["suspect_count"].(float64) != 1 {
		t.Errorf("suspect_count = %v", data["suspect_count"])
	}
}

func TestActivateSession(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/api/v1/sessions", "application/json",
		strings.NewReader(`{"mode":"roam"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusCreated || !body.Success {
		t.Fatalf("status = %d, error = %q", resp.StatusCode, body.Error)
	}
	if len(f.sessions.activated) != 1 || f.sessions.activated[0] != models.ModeRoam {
		t.Errorf("activated = %v", f.sessions.activated)
	}
}

func TestActivateSessionConflicts(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"mode conflict", `{"mode":"home"}`, session.ErrAlreadyActive, http.StatusConflict},
		{"invalid mode", `{"mode":"warp"}`, session.ErrInvalidMode, http.StatusBadRequest},
		{"garbage body", `{{{`, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.sessions.activateErr = tt.err

			resp, err := http.Post(f.srv.URL+"/api/v1/sessions", "application/json",
				strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			body := decodeResponse(t, resp)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if body.Success {
				t.Error("expected error envelope")
			}
		})
	}
}

func TestDeactivateSession(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	req, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/v1/sessions/"+id.String(), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(f.sessions.deactivated) != 1 || f.sessions.deactivated[0] != id {
		t.Errorf("deactivated = %v", f.sessions.deactivated)
	}

	// Malformed UUID.
	req, _ = http.NewRequest(http.MethodDelete, f.srv.URL+"/api/v1/sessions/not-a-uuid", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSightingsFilterParsing(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/v1/sightings?device_id=AA:BB:CC:DD:EE:FF&mode=home&since=2026-08-01T00:00:00Z&limit=10&offset=5")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	got := f.store.lastFilter
	if got.DeviceID != "AA:BB:CC:DD:EE:FF" || got.Mode != models.ModeHome {
		t.Errorf("filter = %+v", got)
	}
	if got.Limit != 10 || got.Offset != 5 {
		t.Errorf("pagination = limit %d offset %d", got.Limit, got.Offset)
	}
	if got.Since.IsZero() {
		t.Error("since not parsed")
	}

	// Bad timestamp rejected.
	resp, err = http.Get(f.srv.URL + "/api/v1/sightings?since=yesterday")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPaginationClamped(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/v1/sightings?limit=99999")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	decodeResponse(t, resp)
	if f.store.lastFilter.Limit != 500 {
		t.Errorf("limit = %d, want clamped to 500", f.store.lastFilter.Limit)
	}
}

func TestSuspects(t *testing.T) {
	f := newFixture(t)
	f.suspects.ranked = []models.SuspectScore{
		{DeviceID: "AA:AA:AA:AA:AA:AA", Rank: 1, Score: 45.2},
		{DeviceID: "BB:BB:BB:BB:BB:BB", Rank: 2, Score: 31.0},
	}

	resp, err := http.Get(f.srv.URL + "/api/v1/suspects?limit=1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := decodeResponse(t, resp)
	list := body.Data.([]interface{})
	if len(list) != 1 {
		t.Fatalf("got %d suspects, want 1", len(list))
	}
	top := list[0].(map[string]interface{})
	if top["device_id"] != "AA:AA:AA:AA:AA:AA" {
		t.Errorf("top suspect = %v", top["device_id"])
	}
}

func TestWatchlistLifecycle(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/api/v1/watchlist/AA:BB:CC:DD:EE:FF", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp, err = http.Get(f.srv.URL + "/api/v1/watchlist")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := decodeResponse(t, resp)
	if body.Meta == nil || body.Meta.Count != 1 {
		t.Errorf("meta = %+v", body.Meta)
	}

	req, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/v1/watchlist/AA:BB:CC:DD:EE:FF", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if f.profiles.byID["AA:BB:CC:DD:EE:FF"].Watchlisted {
		t.Error("device still watchlisted after delete")
	}
}

func TestLabelDevice(t *testing.T) {
	f := newFixture(t)

	req, _ := http.NewRequest(http.MethodPut, f.srv.URL+"/api/v1/devices/F4:F5:D8:11:22:33",
		strings.NewReader(`{"label":"neighbor pixel","group":"known"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK || !body.Success {
		t.Fatalf("status = %d, error = %q", resp.StatusCode, body.Error)
	}

	stored := f.profiles.byID["F4:F5:D8:11:22:33"]
	if stored == nil || stored.Label != "neighbor pixel" {
		t.Errorf("profile = %+v", stored)
	}
	if stored.Manufacturer != "Google" {
		t.Errorf("manufacturer = %q, want Google", stored.Manufacturer)
	}
}

func TestHealthReady(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/v1/health/ready")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	f.store.pingErr = errors.New("db gone")
	resp, err = http.Get(f.srv.URL + "/api/v1/health/ready")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestWebSocketRejectsMissingOrigin(t *testing.T) {
	h := NewHandler(&fakeStore{}, &fakeSessionController{}, &fakeSuspects{}, &fakeProfiles{byID: map[string]*models.DeviceProfile{}}, nil, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	if h.checkWebSocketOrigin(req) {
		t.Error("missing Origin must be rejected")
	}

	req.Header.Set("Origin", "http://dashboard.local")
	if !h.checkWebSocketOrigin(req) {
		t.Error("wildcard CORS must accept any origin")
	}

	h.cfg.API.CORSOrigins = []string{"http://allowed.local"}
	if h.checkWebSocketOrigin(req) {
		t.Error("unlisted origin must be rejected")
	}
}
