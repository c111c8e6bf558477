/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package freshness gates generated break segments by age. The check runs
// at selection time, not generation time, so a segment that was produced
// successfully but never consumed ages out instead of playing hours late.
package freshness

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/queue"
	"github.com/friendsincode/muninn/internal/telemetry"
)

// Guard rejects break segments older than the configured threshold.
// The boundary is inclusive: age == threshold counts as stale. That is
// the safer reading when generation runs on an exact cadence.
type Guard struct {
	threshold time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewGuard creates a guard with the given staleness threshold.
func NewGuard(threshold time.Duration, logger zerolog.Logger) *Guard {
	return &Guard{threshold: threshold, logger: logger, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Threshold returns the configured staleness threshold.
func (g *Guard) Threshold() time.Duration {
	return g.threshold
}

// Fresh reports whether the entry's generated content is young enough to
// play. Stale entries are neither queued for deletion nor removed here;
// the chain simply falls through as if the queue were empty.
func (g *Guard) Fresh(entry *queue.Entry) bool {
	if entry == nil {
		return false
	}
	age := g.now().Sub(entry.GeneratedAt)
	if age >= g.threshold {
		telemetry.StaleBreaksTotal.Inc()
		g.logger.Debug().
			Str("asset", entry.AssetID).
			Dur("age", age).
			Dur("threshold", g.threshold).
			Msg("stale break rejected")
		return false
	}
	return true
}

// FirstFresh returns the oldest fresh entry from the slice, or nil.
func (g *Guard) FirstFresh(entries []queue.Entry) *queue.Entry {
	for i := range entries {
		if g.Fresh(&entries[i]) {
			return &entries[i]
		}
	}
	return nil
}
