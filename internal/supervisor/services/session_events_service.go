// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package services

import (
	"context"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// EventSource hands out subscriptions to session state transitions.
type EventSource interface {
	Subscribe() (<-chan models.SessionEvent, func())
}

// EventSink receives a session transition.
type EventSink interface {
	HandleSessionEvent(ctx context.Context, ev models.SessionEvent)
}

// EventBroadcaster pushes a transition to dashboard clients.
type EventBroadcaster interface {
	BroadcastSessionEvent(ev models.SessionEvent)
}

// SessionEventsService fans session manager transitions out to the alert
// dispatcher and the websocket hub.
type SessionEventsService struct {
	source      EventSource
	sink        EventSink
	broadcaster EventBroadcaster
}

// NewSessionEventsService wires the event fan-out. sink and broadcaster may
// be nil.
func NewSessionEventsService(source EventSource, sink EventSink, broadcaster EventBroadcaster) *SessionEventsService {
	return &SessionEventsService{
		source:      source,
		sink:        sink,
		broadcaster: broadcaster,
	}
}

// Serve implements suture.Service.
func (s *SessionEventsService) Serve(ctx context.Context) error {
	events, cancel := s.source.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if s.sink != nil {
				s.sink.HandleSessionEvent(ctx, ev)
			}
			if s.broadcaster != nil {
				s.broadcaster.BroadcastSessionEvent(ev)
			}
		}
	}
}

// String implements fmt.Stringer.
func (s *SessionEventsService) String() string {
	return "session-events"
}
