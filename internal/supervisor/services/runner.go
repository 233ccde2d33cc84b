// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package services adapts SentinelWatch components to suture.Service.
package services

import "context"

// Server is anything with a blocking, context-aware serve loop. All of the
// long-running components (capture poller, session manager, ingest consumer,
// websocket hub, watchlist sweeper, HTTP server) satisfy this.
type Server interface {
	Serve(ctx context.Context) error
}

// Runner wraps a Server as a named suture service.
type Runner struct {
	name   string
	server Server
}

// NewRunner wraps a component for supervision.
func NewRunner(name string, server Server) *Runner {
	return &Runner{name: name, server: server}
}

// Serve implements suture.Service.
func (r *Runner) Serve(ctx context.Context) error {
	return r.server.Serve(ctx)
}

// String implements fmt.Stringer for suture log messages.
func (r *Runner) String() string {
	return r.name
}
