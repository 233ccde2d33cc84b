// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/config"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// BackendClient polls a Kismet-style capture backend over its REST
// interface. It implements both Source and GPSProvider: the backend owns
// the radio and, when present, the GPS receiver.
type BackendClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewBackendClient builds a client for the configured backend.
func NewBackendClient(cfg *config.CaptureConfig) (*BackendClient, error) {
	if _, err := url.Parse(cfg.BackendURL); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	return &BackendClient{
		baseURL: cfg.BackendURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.ReadTimeout},
	}, nil
}

func (c *BackendClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build backend request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: backend returned %d", ErrBackendUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}

// Poll drains new sighting records from the backend.
func (c *BackendClient) Poll(ctx context.Context) ([]models.RawSighting, error) {
	var records []models.RawSighting
	if err := c.get(ctx, "/api/v1/sightings", &records); err != nil {
		return nil, err
	}
	return records, nil
}

type positionResponse struct {
	HasFix    bool    `json:"has_fix"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CurrentFix returns the backend's GPS position, or nils when the receiver
// has no fix. A backend error is treated as no fix: a sighting without
// coordinates is still worth storing.
func (c *BackendClient) CurrentFix(ctx context.Context) (*float64, *float64, error) {
	var pos positionResponse
	if err := c.get(ctx, "/api/v1/position", &pos); err != nil {
		return nil, nil, err
	}
	if !pos.HasFix {
		return nil, nil, nil
	}
	return &pos.Latitude, &pos.Longitude, nil
}
