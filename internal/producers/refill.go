/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package producers holds the scheduled jobs that feed the queues: the
// music refill, the hourly break generation, and the daily break plan.
// Producers are the only components that read the kill switch.
package producers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/models"
	"github.com/friendsincode/muninn/internal/queue"
	"github.com/friendsincode/muninn/internal/selector"
	"github.com/friendsincode/muninn/internal/telemetry"
)

// Refill tops the music queue up to the configured depth.
type Refill struct {
	queues   *queue.Manager
	selector *selector.Selector
	depth    int
	logger   zerolog.Logger
}

// NewRefill creates the music refill producer.
func NewRefill(queues *queue.Manager, sel *selector.Selector, depth int, logger zerolog.Logger) *Refill {
	return &Refill{queues: queues, selector: sel, depth: depth, logger: logger}
}

// Run is the scheduled job body. It asks the selector for exactly the
// shortfall; a full queue or an empty library are both quiet no-ops.
func (r *Refill) Run(ctx context.Context) error {
	current := r.queues.Depth(models.QueueMusic)
	if current >= r.depth {
		return nil
	}

	picked, err := r.selector.Pick(ctx, r.depth-current)
	if err != nil {
		return err
	}
	if len(picked) == 0 {
		telemetry.ProducerSkipsTotal.WithLabelValues("empty_library").Inc()
		return nil
	}

	now := time.Now().UTC()
	for _, asset := range picked {
		if _, err := r.queues.Push(models.QueueMusic, asset.ID, now); err != nil {
			return err
		}
	}

	r.logger.Info().
		Int("enqueued", len(picked)).
		Int("depth", current+len(picked)).
		Msg("music queue refilled")
	return nil
}
