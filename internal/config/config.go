// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package config holds all application configuration loaded via Koanf v2
// with layered sources: struct defaults, an optional YAML file, then
// environment variables. Config is immutable after Load() and safe for
// concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for SentinelWatch.
type Config struct {
	Capture     CaptureConfig     `koanf:"capture"`
	Database    DatabaseConfig    `koanf:"database"`
	GeoCluster  GeoClusterConfig  `koanf:"geocluster"`
	Correlation CorrelationConfig `koanf:"correlation"`
	Session     SessionConfig     `koanf:"session"`
	Retention   RetentionConfig   `koanf:"retention"`
	Alerts      AlertsConfig      `koanf:"alerts"`
	Watchlist   WatchlistConfig   `koanf:"watchlist"`
	Server      ServerConfig      `koanf:"server"`
	API         APIConfig         `koanf:"api"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// CaptureConfig controls polling of the packet-capture backend.
type CaptureConfig struct {
	// BackendURL is the base URL of the capture backend's REST interface.
	BackendURL string `koanf:"backend_url"`

	// APIKey authenticates against the backend. Empty disables the header.
	APIKey string `koanf:"api_key"`

	// PollInterval is the cadence at which the backend is polled for new
	// sighting records while a capture-holding session is active.
	PollInterval time.Duration `koanf:"poll_interval"`

	// ReadTimeout bounds a single backend poll.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// RetryBudget is the number of consecutive poll failures tolerated
	// before the session manager is told the backend is down.
	RetryBudget int `koanf:"retry_budget"`

	// RatePerSecond paces backend polls on constrained hardware.
	// Zero disables pacing.
	RatePerSecond float64 `koanf:"rate_per_second"`

	// ClockSkewTolerance is how far in the future a sighting timestamp may
	// be before it is rejected as invalid.
	ClockSkewTolerance time.Duration `koanf:"clock_skew_tolerance"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// GeoClusterConfig controls how GPS fixes are grouped into locations.
type GeoClusterConfig struct {
	// RadiusMeters is the maximum distance from a cluster centroid at
	// which a fix joins that cluster. A fix farther than this from every
	// centroid creates a new cluster.
	RadiusMeters float64 `koanf:"radius_meters"`

	// MaxClusters caps the in-memory cluster set. Bounded by the number
	// of real-world places visited, not by sighting volume.
	MaxClusters int `koanf:"max_clusters"`
}

// CorrelationConfig controls suspect scoring.
type CorrelationConfig struct {
	// LocationWeight (W1) multiplies the distinct known-location count.
	LocationWeight float64 `koanf:"location_weight"`

	// EncounterWeight (W2) multiplies log(1+totalEncounters). Must be
	// strictly less than LocationWeight so that location diversity
	// dominates raw encounter frequency.
	EncounterWeight float64 `koanf:"encounter_weight"`

	// MinLocations is the distinct known-location threshold below which a
	// device is excluded from the ranked output.
	MinLocations int `koanf:"min_locations"`

	// RecomputeInterval is the cadence of the periodic recompute job.
	RecomputeInterval time.Duration `koanf:"recompute_interval"`

	// Lookback is the time range each recompute covers.
	Lookback time.Duration `koanf:"lookback"`

	// MaxSuspects caps the ranked output length.
	MaxSuspects int `koanf:"max_suspects"`
}

// SessionConfig controls the scan-session state machine.
type SessionConfig struct {
	// IdleThreshold is how long user input must be absent before the
	// manager arms for autonomous home scanning.
	IdleThreshold time.Duration `koanf:"idle_threshold"`

	// IdlePollInterval is the cadence of idle-time provider polls.
	IdlePollInterval time.Duration `koanf:"idle_poll_interval"`

	// ArmedDwell is the confirmation window between arming and scanning.
	// Activity during the dwell returns the manager to idle without
	// creating a session, which debounces rapid idle/active flapping.
	ArmedDwell time.Duration `koanf:"armed_dwell"`

	// ErrorBackoff is how long the manager stays in the error state after
	// a backend failure before returning to idle.
	ErrorBackoff time.Duration `koanf:"error_backoff"`

	// ActivityFile is a path whose modification time marks the last user
	// activity. Empty disables the autonomous idle trigger entirely.
	ActivityFile string `koanf:"activity_file"`
}

// RetentionConfig bounds sighting storage on constrained devices.
type RetentionConfig struct {
	// MaxAge prunes sightings older than this. Zero disables age pruning.
	MaxAge time.Duration `koanf:"max_age"`

	// MaxRows prunes oldest sightings beyond this count. Zero disables.
	MaxRows int64 `koanf:"max_rows"`

	// PruneInterval is the cadence of the prune scheduler.
	PruneInterval time.Duration `koanf:"prune_interval"`
}

// AlertsConfig controls the alert dispatcher and notification channels.
type AlertsConfig struct {
	// Cooldown is the window within which the same (device, kind) pair
	// does not re-fire.
	Cooldown time.Duration `koanf:"cooldown"`

	// SuspectRankThreshold is the rank at or above which a suspect
	// qualifies for an alert (1 = only the top suspect).
	SuspectRankThreshold int `koanf:"suspect_rank_threshold"`

	// LingerThreshold is how long an unlabeled device must keep appearing
	// near the home location before a linger alert fires. Zero disables
	// linger detection.
	LingerThreshold time.Duration `koanf:"linger_threshold"`

	// HistoryLimit caps the in-memory recent-alert ring buffer that feeds
	// the dashboard.
	HistoryLimit int `koanf:"history_limit"`

	Email EmailChannelConfig `koanf:"email"`
	SMS   SMSChannelConfig   `koanf:"sms"`
}

// EmailChannelConfig configures the email alert channel. Only intent
// construction happens in-core; delivery is an injected sink.
type EmailChannelConfig struct {
	Enabled bool     `koanf:"enabled"`
	From    string   `koanf:"from"`
	To      string   `koanf:"to"`
	SendOn  []string `koanf:"send_on"` // severities, e.g. ["critical"]
}

// SMSChannelConfig configures the SMS alert channel.
type SMSChannelConfig struct {
	Enabled bool     `koanf:"enabled"`
	To      string   `koanf:"to"`
	SendOn  []string `koanf:"send_on"`
}

// WatchlistConfig controls the profile store and the scheduled sweep.
type WatchlistConfig struct {
	// StorePath is the badger directory for device profiles.
	StorePath string `koanf:"store_path"`

	// SweepInterval is the cadence of the scheduled watchlist sweep.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// SweepLookback is how far back each sweep searches for hits.
	SweepLookback time.Duration `koanf:"sweep_lookback"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// APIConfig holds API pagination and rate-limit settings.
type APIConfig struct {
	DefaultPageSize int      `koanf:"default_page_size"`
	MaxPageSize     int      `koanf:"max_page_size"`
	RateLimitReqs   int      `koanf:"rate_limit_reqs"`
	CORSOrigins     []string `koanf:"cors_origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks cross-field constraints that koanf cannot express.
func (c *Config) Validate() error {
	if c.Correlation.LocationWeight <= c.Correlation.EncounterWeight {
		return fmt.Errorf("correlation: location_weight (%.2f) must exceed encounter_weight (%.2f) so location diversity dominates frequency",
			c.Correlation.LocationWeight, c.Correlation.EncounterWeight)
	}
	if c.Correlation.MinLocations < 2 {
		return fmt.Errorf("correlation: min_locations must be >= 2, got %d", c.Correlation.MinLocations)
	}
	if c.GeoCluster.RadiusMeters <= 0 {
		return fmt.Errorf("geocluster: radius_meters must be positive, got %.1f", c.GeoCluster.RadiusMeters)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database: path is required")
	}
	if c.Capture.BackendURL == "" {
		return fmt.Errorf("capture: backend_url is required")
	}
	if c.Capture.RetryBudget < 1 {
		return fmt.Errorf("capture: retry_budget must be >= 1, got %d", c.Capture.RetryBudget)
	}
	if c.Session.ArmedDwell <= 0 {
		return fmt.Errorf("session: armed_dwell must be positive")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.Server.Port)
	}
	if c.Alerts.Cooldown < 0 {
		return fmt.Errorf("alerts: cooldown cannot be negative")
	}
	if c.Alerts.LingerThreshold < 0 {
		return fmt.Errorf("alerts: linger_threshold cannot be negative")
	}
	for _, sev := range append(append([]string{}, c.Alerts.Email.SendOn...), c.Alerts.SMS.SendOn...) {
		switch sev {
		case "info", "warning", "critical":
		default:
			return fmt.Errorf("alerts: unknown severity %q in send_on", sev)
		}
	}
	return nil
}
