// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

// Package ingest moves capture batches from the poller into the sighting
// store over an in-process Watermill Pub/Sub. The bus decouples capture
// cadence from storage latency: a slow DuckDB write never stalls a poll.
package ingest

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/capture"
)

// TopicSightingBatches carries capture.Batch payloads.
const TopicSightingBatches = "sightings.captured"

// NewBus creates the in-process Pub/Sub both ends of the pipeline share.
func NewBus() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			// Bounded buffer: capture backs off before memory does.
			OutputChannelBuffer: 64,
		},
		watermill.NopLogger{},
	)
}

// Publisher forwards capture batches onto the bus. It satisfies
// capture.Forwarder.
type Publisher struct {
	pub message.Publisher
}

// NewPublisher wraps a Watermill publisher.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// Forward publishes one batch.
func (p *Publisher) Forward(_ context.Context, batch capture.Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal capture batch: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.pub.Publish(TopicSightingBatches, msg); err != nil {
		return fmt.Errorf("failed to publish capture batch: %w", err)
	}
	return nil
}
