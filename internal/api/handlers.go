// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package api exposes the HTTP surface: status, sessions, sightings,
// suspects, clusters, alerts, device profiles, and the live WebSocket feed.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/config"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/session"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/watchlist"
	ws "github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/websocket"
)

// Store is the read/query surface the handlers need from the database.
type Store interface {
	QuerySightings(ctx context.Context, f database.SightingFilter) ([]models.DeviceSighting, error)
	CountSightings(ctx context.Context) (int64, error)
	ListSessions(ctx context.Context, activeOnly bool, limit int) ([]models.ScanSession, error)
	ListClusters(ctx context.Context) ([]models.LocationCluster, error)
	ListAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error)
	Ping(ctx context.Context) error
}

// SessionController drives the session state machine from the API.
type SessionController interface {
	Activate(ctx context.Context, mode models.ScanMode, trigger models.TriggerReason) (*models.ScanSession, error)
	Deactivate(ctx context.Context, sessionID uuid.UUID) error
	State(ctx context.Context) (models.SessionState, error)
}

// SuspectSource serves the cached suspect ranking.
type SuspectSource interface {
	Ranked() []models.SuspectScore
	LastRun() time.Time
}

// ProfileStore manages device profiles and the watchlist flag.
type ProfileStore interface {
	Upsert(p *models.DeviceProfile) error
	Get(deviceID string) (*models.DeviceProfile, error)
	List(watchlistedOnly bool) ([]models.DeviceProfile, error)
	SetWatchlisted(deviceID string, watchlisted bool) (*models.DeviceProfile, error)
	Delete(deviceID string) error
}

// Handler holds the dependencies for all API endpoints.
type Handler struct {
	store     Store
	sessions  SessionController
	suspects  SuspectSource
	profiles  ProfileStore
	hub       *ws.Hub
	cfg       *config.Config
	startTime time.Time
}

// NewHandler wires the API handler.
func NewHandler(store Store, sessions SessionController, suspects SuspectSource, profiles ProfileStore, hub *ws.Hub, cfg *config.Config) *Handler {
	return &Handler{
		store:     store,
		sessions:  sessions,
		suspects:  suspects,
		profiles:  profiles,
		hub:       hub,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondOK(w, map[string]string{"status": "alive"})
}

// HealthReady reports readiness: the database must answer a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	respondOK(w, map[string]string{"status": "ready"})
}

// StatusData is the /status payload.
type StatusData struct {
	State          models.SessionState  `json:"state"`
	ActiveSessions []models.ScanSession `json:"active_sessions"`
	TotalSightings int64                `json:"total_sightings"`
	SuspectCount   int                  `json:"suspect_count"`
	LastRecompute  *time.Time           `json:"last_recompute,omitempty"`
	UptimeSeconds  int64                `json:"uptime_seconds"`
	Clients        int                  `json:"ws_clients"`
}

// Status summarizes the system for the dashboard header.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.State(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "session manager unavailable")
		return
	}
	active, err := h.store.ListSessions(r.Context(), true, 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	total, err := h.store.CountSightings(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count sightings")
		return
	}

	data := StatusData{
		State:          state,
		ActiveSessions: active,
		TotalSightings: total,
		SuspectCount:   len(h.suspects.Ranked()),
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
	}
	if last := h.suspects.LastRun(); !last.IsZero() {
		data.LastRecompute = &last
	}
	if h.hub != nil {
		data.Clients = h.hub.ClientCount()
	}
	respondOK(w, data)
}

// Sessions lists scan sessions, newest first. ?active=true narrows to open
// sessions.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := h.pagination(r)
	activeOnly := r.URL.Query().Get("active") == "true"

	sessions, err := h.store.ListSessions(r.Context(), activeOnly, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	respondList(w, sessions, Meta{Limit: limit, Count: len(sessions)})
}

type activateRequest struct {
	Mode models.ScanMode `json:"mode"`
}

// ActivateSession starts a manual scan session.
func (h *Handler) ActivateSession(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.sessions.Activate(r.Context(), req.Mode, models.TriggerManual)
	switch {
	case errors.Is(err, session.ErrInvalidMode):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, session.ErrAlreadyActive):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		logging.Error().Err(err).Msg("session activation failed")
		respondError(w, http.StatusInternalServerError, "failed to activate session")
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: sess})
}

// DeactivateSession ends a scan session by ID.
func (h *Handler) DeactivateSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	if err := h.sessions.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		logging.Error().Err(err).Str("session_id", id.String()).Msg("session deactivation failed")
		respondError(w, http.StatusInternalServerError, "failed to deactivate session")
		return
	}
	respondOK(w, map[string]string{"session_id": id.String(), "status": "ended"})
}

// Sightings lists stored sightings with optional filters.
func (h *Handler) Sightings(w http.ResponseWriter, r *http.Request) {
	limit, offset := h.pagination(r)
	q := r.URL.Query()

	filter := database.SightingFilter{
		DeviceID:  q.Get("device_id"),
		ClusterID: q.Get("cluster_id"),
		Mode:      models.ScanMode(q.Get("mode")),
		Limit:     limit,
		Offset:    offset,
	}
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since timestamp, want RFC3339")
			return
		}
		filter.Since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid until timestamp, want RFC3339")
			return
		}
		filter.Until = t
	}

	sightings, err := h.store.QuerySightings(r.Context(), filter)
	if err != nil {
		logging.Error().Err(err).Msg("sighting query failed")
		respondError(w, http.StatusInternalServerError, "failed to query sightings")
		return
	}
	respondList(w, sightings, Meta{Limit: limit, Offset: offset, Count: len(sightings)})
}

// Suspects returns the cached suspect ranking.
func (h *Handler) Suspects(w http.ResponseWriter, r *http.Request) {
	limit, _ := h.pagination(r)
	ranked := h.suspects.Ranked()
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	respondList(w, ranked, Meta{Limit: limit, Count: len(ranked)})
}

// Clusters lists known location clusters.
func (h *Handler) Clusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := h.store.ListClusters(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list clusters")
		return
	}
	respondList(w, clusters, Meta{Count: len(clusters)})
}

// Alerts lists recent alert history, newest first.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := h.pagination(r)
	alerts, err := h.store.ListAlerts(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	respondList(w, alerts, Meta{Limit: limit, Count: len(alerts)})
}

// Devices lists device profiles. ?watchlisted=true narrows to flagged ones.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	watchlistedOnly := r.URL.Query().Get("watchlisted") == "true"
	profiles, err := h.profiles.List(watchlistedOnly)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	respondList(w, profiles, Meta{Count: len(profiles)})
}

type labelRequest struct {
	Label string `json:"label"`
	Group string `json:"group"`
	Notes string `json:"notes"`
}

// LabelDevice creates or updates a device profile's label, group, and notes.
func (h *Handler) LabelDevice(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")
	if mac == "" {
		respondError(w, http.StatusBadRequest, "device id required")
		return
	}

	var req labelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.profiles.Get(mac)
	if errors.Is(err, watchlist.ErrProfileNotFound) {
		profile = &models.DeviceProfile{
			DeviceID:     mac,
			Manufacturer: watchlist.ManufacturerFor(mac),
		}
	} else if err != nil {
		respondError(w, http.StatusInternalServerError, "profile lookup failed")
		return
	}

	profile.Label = req.Label
	profile.Group = req.Group
	profile.Notes = req.Notes
	if err := h.profiles.Upsert(profile); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store profile")
		return
	}
	respondOK(w, profile)
}

// AddToWatchlist flags a device for scheduled sweeps and live hit alerts.
func (h *Handler) AddToWatchlist(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")
	if mac == "" {
		respondError(w, http.StatusBadRequest, "device id required")
		return
	}

	profile, err := h.profiles.SetWatchlisted(mac, true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update watchlist")
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: profile})
}

// RemoveFromWatchlist unflags a device.
func (h *Handler) RemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")
	if mac == "" {
		respondError(w, http.StatusBadRequest, "device id required")
		return
	}

	profile, err := h.profiles.SetWatchlisted(mac, false)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update watchlist")
		return
	}
	respondOK(w, profile)
}

// Watchlist lists flagged devices.
func (h *Handler) Watchlist(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.List(true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list watchlist")
		return
	}
	respondList(w, profiles, Meta{Count: len(profiles)})
}

// WebSocket upgrades the connection and attaches the client to the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

// checkWebSocketOrigin validates the Origin header against configured CORS
// origins. Browser clients always send Origin; an empty one is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("websocket connection rejected: missing Origin header")
		return false
	}
	for _, allowed := range h.cfg.API.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket connection rejected: unauthorized origin")
	return false
}
