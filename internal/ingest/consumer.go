// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/capture"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/database"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/logging"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/metrics"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/validation"
)

// SightingWriter is the store surface the consumer writes to.
type SightingWriter interface {
	InsertSighting(ctx context.Context, s *models.DeviceSighting) error
}

// ClusterResolver maps a fix to a location cluster.
type ClusterResolver interface {
	Resolve(ctx context.Context, lat, lon *float64, at time.Time) string
}

// SightingObserver is notified after a sighting lands in the store. The
// alert dispatcher hangs off this hook for watchlist hits.
type SightingObserver interface {
	SightingStored(ctx context.Context, s *models.DeviceSighting)
}

// Consumer drains the bus, validates records, assigns clusters, and writes
// sightings. One bad record never fails a batch.
type Consumer struct {
	sub      message.Subscriber
	writer   SightingWriter
	resolver ClusterResolver
	observer SightingObserver
	skew     time.Duration
	clock    func() time.Time
}

// NewConsumer wires the storage end of the pipeline. observer may be nil.
func NewConsumer(sub message.Subscriber, writer SightingWriter, resolver ClusterResolver, observer SightingObserver, clockSkewTolerance time.Duration) *Consumer {
	return &Consumer{
		sub:      sub,
		writer:   writer,
		resolver: resolver,
		observer: observer,
		skew:     clockSkewTolerance,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Serve consumes batches until ctx is cancelled.
func (c *Consumer) Serve(ctx context.Context) error {
	messages, err := c.sub.Subscribe(ctx, TopicSightingBatches)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TopicSightingBatches, err)
	}

	logging.Info().Str("topic", TopicSightingBatches).Msg("ingest consumer started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("ingest consumer stopped")
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.processMessage(ctx, msg)
			msg.Ack()
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *message.Message) {
	var batch capture.Batch
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		metrics.SightingsRejected.WithLabelValues("invalid").Inc()
		logging.Error().Err(err).Str("message_id", msg.UUID).Msg("undecodable capture batch")
		return
	}

	stored, rejected, duplicate := 0, 0, 0
	for i := range batch.Records {
		switch err := c.ingestRecord(ctx, &batch, &batch.Records[i]); {
		case err == nil:
			stored++
		case errors.Is(err, database.ErrDuplicateSighting):
			duplicate++
			metrics.SightingsDuplicate.Inc()
		default:
			rejected++
			logging.Debug().Err(err).
				Str("device_id", batch.Records[i].DeviceID).
				Msg("sighting rejected")
		}
	}

	metrics.SightingsIngested.WithLabelValues(string(batch.Mode)).Add(float64(stored))

	logging.Debug().
		Int("stored", stored).
		Int("rejected", rejected).
		Int("duplicate", duplicate).
		Str("mode", string(batch.Mode)).
		Msg("capture batch processed")
}

func (c *Consumer) ingestRecord(ctx context.Context, batch *capture.Batch, raw *models.RawSighting) error {
	bounds := validation.SightingBounds{
		Now:                c.clock(),
		ClockSkewTolerance: c.skew,
		SessionStart:       batch.StartTime,
	}
	if err := validation.ValidateRawSighting(raw, bounds); err != nil {
		metrics.SightingsRejected.WithLabelValues("invalid").Inc()
		return err
	}

	s := &models.DeviceSighting{
		DeviceID:       raw.DeviceID,
		TimestampUTC:   raw.TimestampUTC.UTC(),
		SessionID:      batch.SessionID,
		Mode:           batch.Mode,
		SignalStrength: raw.SignalStrength,
		Latitude:       raw.Latitude,
		Longitude:      raw.Longitude,
		ClusterID:      c.resolver.Resolve(ctx, raw.Latitude, raw.Longitude, raw.TimestampUTC),
		Fingerprint:    raw.Fingerprint,
	}

	if err := c.writer.InsertSighting(ctx, s); err != nil {
		return err
	}

	if c.observer != nil {
		c.observer.SightingStored(ctx, s)
	}
	return nil
}
