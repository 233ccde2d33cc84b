// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sentinelwatch/config.yaml",
	"/etc/sentinelwatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are applied
// first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			BackendURL:         "http://127.0.0.1:2501",
			PollInterval:       30 * time.Second,
			ReadTimeout:        10 * time.Second,
			RetryBudget:        5,
			RatePerSecond:      0, // unpaced
			ClockSkewTolerance: 2 * time.Minute,
		},
		Database: DatabaseConfig{
			Path:                   "/data/sentinelwatch.duckdb",
			MaxMemory:              "512MB", // Pi-class hardware
			Threads:                0,       // 0 = runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		GeoCluster: GeoClusterConfig{
			RadiusMeters: 150,
			MaxClusters:  10000,
		},
		Correlation: CorrelationConfig{
			LocationWeight:    10,
			EncounterWeight:   1,
			MinLocations:      2,
			RecomputeInterval: time.Minute,
			Lookback:          7 * 24 * time.Hour,
			MaxSuspects:       100,
		},
		Session: SessionConfig{
			IdleThreshold:    time.Minute,
			IdlePollInterval: 15 * time.Second,
			ArmedDwell:       time.Minute,
			ErrorBackoff:     2 * time.Minute,
		},
		Retention: RetentionConfig{
			MaxAge:        30 * 24 * time.Hour,
			MaxRows:       500_000,
			PruneInterval: time.Hour,
		},
		Alerts: AlertsConfig{
			Cooldown:             30 * time.Minute,
			SuspectRankThreshold: 3,
			LingerThreshold:      5 * time.Minute,
			HistoryLimit:         200,
			Email: EmailChannelConfig{
				Enabled: false,
				SendOn:  []string{"warning", "critical"},
			},
			SMS: SMSChannelConfig{
				Enabled: false,
				SendOn:  []string{"critical"},
			},
		},
		Watchlist: WatchlistConfig{
			StorePath:     "/data/profiles",
			SweepInterval: 15 * time.Minute,
			SweepLookback: time.Hour,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8090,
			Timeout: 30 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     500,
			RateLimitReqs:   100,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in values
//  2. Config file: optional YAML file (if exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// SW_CAPTURE_POLL_INTERVAL -> capture.poll_interval etc.
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths. Returns the
// first file found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when supplied through the environment.
var sliceConfigPaths = []string{
	"api.cors_origins",
	"alerts.email.send_on",
	"alerts.sms.send_on",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment noise never pollutes
// the config.
//
// Examples:
//   - SW_CAPTURE_POLL_INTERVAL -> capture.poll_interval
//   - DUCKDB_PATH              -> database.path
//   - HTTP_PORT                -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Capture mappings
		"sw_capture_backend_url":    "capture.backend_url",
		"sw_capture_api_key":        "capture.api_key",
		"sw_capture_poll_interval":  "capture.poll_interval",
		"sw_capture_read_timeout":   "capture.read_timeout",
		"sw_capture_retry_budget":   "capture.retry_budget",
		"sw_capture_rate":           "capture.rate_per_second",
		"sw_capture_clock_skew":     "capture.clock_skew_tolerance",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// GeoCluster mappings
		"sw_cluster_radius_meters": "geocluster.radius_meters",
		"sw_cluster_max":           "geocluster.max_clusters",

		// Correlation mappings
		"sw_score_location_weight":  "correlation.location_weight",
		"sw_score_encounter_weight": "correlation.encounter_weight",
		"sw_score_min_locations":    "correlation.min_locations",
		"sw_recompute_interval":     "correlation.recompute_interval",
		"sw_recompute_lookback":     "correlation.lookback",
		"sw_max_suspects":           "correlation.max_suspects",

		// Session mappings
		"sw_idle_threshold":     "session.idle_threshold",
		"sw_idle_poll_interval": "session.idle_poll_interval",
		"sw_armed_dwell":        "session.armed_dwell",
		"sw_error_backoff":      "session.error_backoff",
		"sw_activity_file":      "session.activity_file",

		// Retention mappings
		"sw_retention_max_age":  "retention.max_age",
		"sw_retention_max_rows": "retention.max_rows",
		"sw_prune_interval":     "retention.prune_interval",

		// Alert mappings
		"sw_alert_cooldown":       "alerts.cooldown",
		"sw_alert_rank_threshold": "alerts.suspect_rank_threshold",
		"sw_alert_linger":         "alerts.linger_threshold",
		"sw_alert_history_limit":  "alerts.history_limit",
		"sw_email_enabled":        "alerts.email.enabled",
		"sw_email_from":           "alerts.email.from",
		"sw_email_to":             "alerts.email.to",
		"sw_email_send_on":        "alerts.email.send_on",
		"sw_sms_enabled":          "alerts.sms.enabled",
		"sw_sms_to":               "alerts.sms.to",
		"sw_sms_send_on":          "alerts.sms.send_on",

		// Watchlist mappings
		"sw_profile_store_path":  "watchlist.store_path",
		"sw_sweep_interval":      "watchlist.sweep_interval",
		"sw_sweep_lookback":      "watchlist.sweep_lookback",

		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",

		// API mappings
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"rate_limit_requests":   "api.rate_limit_reqs",
		"cors_origins":          "api.cors_origins",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}
