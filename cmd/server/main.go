// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package main is the entry point for the SentinelWatch appliance.
//
// SentinelWatch ingests wireless device sightings from a Kismet-style
// capture backend, clusters GPS fixes into locations, and ranks devices that
// reappear across distinct places. It runs as a single process under a
// supervisor tree:
//
//  1. Configuration: Koanf v2 layered sources (defaults, YAML file, env)
//  2. Storage: DuckDB sighting store plus a Badger device-profile store
//  3. Data layer: ingest consumer and prune scheduler
//  4. Detection layer: capture poller, session manager, recompute
//     scheduler, watchlist sweeper, alert fan-out
//  5. API layer: Chi REST API, Prometheus metrics, WebSocket dashboard feed
//
// # Configuration
//
// Settings load via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (SW_* plus DUCKDB_*, HTTP_*, LOG_*)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger a graceful shutdown: open scan sessions are
// closed, in-flight HTTP requests get 10 seconds to finish, and the
// supervisor waits out its shutdown timeout before reporting stragglers.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/alerts"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/api"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/capture"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/config"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/correlation"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/geocluster"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/ingest"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/session"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/supervisor"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/supervisor/services"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/watchlist"
	ws "github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("backend_url", cfg.Capture.BackendURL).
		Str("db_path", cfg.Database.Path).
		Str("profile_store", cfg.Watchlist.StorePath).
		Msg("Starting SentinelWatch")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	profiles, err := watchlist.Open(cfg.Watchlist.StorePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open profile store")
	}
	defer func() {
		if err := profiles.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing profile store")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Geo clustering warms its centroid cache from persisted clusters so
	// cluster IDs stay stable across restarts.
	resolver := geocluster.New(cfg.GeoCluster.RadiusMeters, cfg.GeoCluster.MaxClusters, db)
	if err := resolver.Hydrate(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to hydrate location clusters")
	}

	engine := correlation.NewEngine(db, correlation.Config{
		LocationWeight:  cfg.Correlation.LocationWeight,
		EncounterWeight: cfg.Correlation.EncounterWeight,
		MinLocations:    cfg.Correlation.MinLocations,
		Lookback:        cfg.Correlation.Lookback,
		MaxSuspects:     cfg.Correlation.MaxSuspects,
	})

	idle := session.NewFileIdleProvider(cfg.Session.ActivityFile)
	if cfg.Session.ActivityFile == "" {
		logging.Info().Msg("No activity file configured, autonomous idle trigger disabled")
	}
	manager := session.NewManager(db, idle, cfg.Session)

	wsHub := ws.NewHub()

	notifiers := alerts.BuildNotifiers(cfg.Alerts, logSendFunc("email"), logSendFunc("sms"))
	dispatcher := alerts.NewDispatcher(db, notifiers, wsHub,
		cfg.Alerts.Cooldown, cfg.Alerts.LingerThreshold,
		cfg.Alerts.SuspectRankThreshold, cfg.Alerts.HistoryLimit)
	dispatcher.AttachProfiles(profiles)
	dispatcher.AttachSightings(db)

	bus := ingest.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing ingest bus")
		}
	}()
	publisher := ingest.NewPublisher(bus)
	consumer := ingest.NewConsumer(bus, db, resolver, dispatcher, cfg.Capture.ClockSkewTolerance)

	backend, err := capture.NewBackendClient(&cfg.Capture)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build capture backend client")
	}
	poller := capture.NewPoller(backend, backend, manager, publisher, manager, cfg.Capture)

	sweeper := watchlist.NewSweeper(profiles, db, manager, dispatcher,
		cfg.Watchlist.SweepInterval, cfg.Watchlist.SweepLookback)

	handler := api.NewHandler(db, manager, engine, profiles, wsHub, cfg)
	httpServer := api.NewServer(&cfg.Server, api.NewRouter(handler).Setup())

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddDataService(services.NewRunner("ingest-consumer", consumer))
	tree.AddDataService(services.NewPruneService(db, database.PrunePolicy{
		MaxAge:  cfg.Retention.MaxAge,
		MaxRows: cfg.Retention.MaxRows,
	}, cfg.Retention.PruneInterval))

	tree.AddDetectionService(services.NewRunner("session-manager", manager))
	tree.AddDetectionService(services.NewRunner("capture-poller", poller))
	tree.AddDetectionService(services.NewRecomputeService(engine, dispatcher, wsHub, cfg.Correlation.RecomputeInterval))
	tree.AddDetectionService(services.NewRunner("watchlist-sweeper", sweeper))
	tree.AddDetectionService(services.NewSessionEventsService(manager, dispatcher, wsHub))

	tree.AddAPIService(services.NewRunner("websocket-hub", wsHub))
	tree.AddAPIService(services.NewRunner("http-server", httpServer))
	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("SentinelWatch stopped gracefully")
}

// logSendFunc hands a delivery intent to the log stream, where an external
// delivery agent (msmtp hook, gammu, journald watcher) picks it up. In-core
// we only construct intents; actual transport stays outside the process.
func logSendFunc(channel string) alerts.SendFunc {
	return func(_ context.Context, to, subject, body string) error {
		logging.Info().
			Str("channel", channel).
			Str("to", to).
			Str("subject", subject).
			Str("body", body).
			Msg("alert intent emitted")
		return nil
	}
}
