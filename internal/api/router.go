// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the HTTP routing tree.
type Router struct {
	handler *Handler
}

// NewRouter creates a router around the handler.
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Setup builds the chi routing tree with middleware applied.
func (router *Router) Setup() http.Handler {
	cfg := router.handler.cfg

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.API.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.API.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(cfg.API.RateLimitReqs, time.Minute))
		}

		r.Get("/status", router.handler.Status)

		r.Get("/sessions", router.handler.Sessions)
		r.Post("/sessions", router.handler.ActivateSession)
		r.Delete("/sessions/{id}", router.handler.DeactivateSession)

		r.Get("/sightings", router.handler.Sightings)
		r.Get("/suspects", router.handler.Suspects)
		r.Get("/clusters", router.handler.Clusters)
		r.Get("/alerts", router.handler.Alerts)

		r.Get("/devices", router.handler.Devices)
		r.Put("/devices/{mac}", router.handler.LabelDevice)

		r.Get("/watchlist", router.handler.Watchlist)
		r.Post("/watchlist/{mac}", router.handler.AddToWatchlist)
		r.Delete("/watchlist/{mac}", router.handler.RemoveFromWatchlist)

		r.Get("/ws", router.handler.WebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
