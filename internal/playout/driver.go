/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playout connects the fallback chain to the external playout
// engine. The engine asks for the next item at track boundaries (and
// probes for override pre-emption mid-track); it reports back when a
// track actually starts, which is the moment queue entries are consumed
// and the ledger is written.
package playout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/assets"
	"github.com/friendsincode/muninn/internal/events"
	"github.com/friendsincode/muninn/internal/fallback"
	"github.com/friendsincode/muninn/internal/ledger"
	"github.com/friendsincode/muninn/internal/models"
	"github.com/friendsincode/muninn/internal/queue"
)

// TrackStart is the engine's report that playback of an item began.
type TrackStart struct {
	AssetID   string         `json:"asset_id"`
	Queue     string         `json:"queue,omitempty"` // empty for bed/safety/emergency
	StartedAt time.Time      `json:"started_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Driver is the engine-facing façade over the chain, queues and ledger.
type Driver struct {
	chain  *fallback.Chain
	queues *queue.Manager
	store  *assets.Store
	ledger *ledger.Ledger
	bus    *events.Bus
	logger zerolog.Logger
}

// NewDriver wires the playout driver.
func NewDriver(chain *fallback.Chain, queues *queue.Manager, store *assets.Store, led *ledger.Ledger, bus *events.Bus, logger zerolog.Logger) *Driver {
	return &Driver{
		chain:  chain,
		queues: queues,
		store:  store,
		ledger: led,
		bus:    bus,
		logger: logger,
	}
}

// Next answers the engine's boundary request with the chain's selection.
func (d *Driver) Next(ctx context.Context) (*fallback.Selection, error) {
	return d.chain.Next(ctx)
}

// CheckInterrupt answers the engine's mid-track probe. Nil means keep
// playing; a selection means the override level pre-empts now.
func (d *Driver) CheckInterrupt(ctx context.Context) (*fallback.Selection, error) {
	return d.chain.CheckOverride(ctx)
}

// HandleTrackStart processes a track-start report: the entry leaves its
// queue, the force-break signal is consumed if a break just started, and
// the play lands in the ledger. All effects are keyed to this report, so
// an item handed to the engine but never started leaves no trace.
func (d *Driver) HandleTrackStart(ctx context.Context, report TrackStart) error {
	if report.AssetID == "" {
		return errors.New("track start without asset id")
	}
	if report.StartedAt.IsZero() {
		report.StartedAt = time.Now().UTC()
	}

	q := models.QueueName(report.Queue)
	if report.Queue != "" {
		if !q.Valid() {
			return fmt.Errorf("unknown queue %q", report.Queue)
		}
		if _, err := d.queues.PopOnPlay(q, report.AssetID); err != nil {
			if !errors.Is(err, queue.ErrNotQueued) {
				return fmt.Errorf("consume queue entry: %w", err)
			}
			// Double report or an entry lost to a crash: the play still
			// counts, so keep going.
			d.logger.Warn().
				Str("queue", report.Queue).
				Str("asset", report.AssetID).
				Msg("track start for an asset not in the queue")
		}
		if q == models.QueueBreaks {
			d.chain.Signal().Consume()
		}
	}

	title := report.AssetID
	if asset, err := d.store.Get(ctx, report.AssetID); err == nil {
		title = asset.Title
	} else if report.AssetID == fallback.EmergencyAssetID {
		title = "emergency loop"
	}

	if _, err := d.ledger.Append(ctx, report.AssetID, q, title, report.StartedAt, report.Metadata); err != nil {
		return err
	}

	d.logger.Info().
		Str("asset", report.AssetID).
		Str("queue", report.Queue).
		Str("title", title).
		Msg("now playing")
	if d.bus != nil {
		d.bus.Publish(events.EventNowPlaying, events.Payload{
			"asset":      report.AssetID,
			"queue":      report.Queue,
			"title":      title,
			"started_at": report.StartedAt,
		})
	}
	return nil
}
