/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package fallback implements the playout decision chain. At every track
// boundary it yields the lowest-ordinal level with a ready candidate;
// the override level is additionally evaluated pre-emptively, mid-track.
// The emergency level loops a fixed asset and never fails, so the chain
// always has an answer.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/assets"
	"github.com/friendsincode/muninn/internal/events"
	"github.com/friendsincode/muninn/internal/freshness"
	"github.com/friendsincode/muninn/internal/models"
	"github.com/friendsincode/muninn/internal/queue"
	"github.com/friendsincode/muninn/internal/telemetry"
)

// Level is one priority tier. Lower ordinal wins.
type Level int

const (
	LevelOverride Level = iota
	LevelForcedBreak
	LevelMusic
	LevelBed
	LevelSafety
	LevelEmergency
)

// String returns a human-readable level name.
func (l Level) String() string {
	switch l {
	case LevelOverride:
		return "override"
	case LevelForcedBreak:
		return "break"
	case LevelMusic:
		return "music"
	case LevelBed:
		return "bed"
	case LevelSafety:
		return "safety"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Interrupts reports whether the level may pre-empt mid-track. Only the
// override level is allowed to; everything else waits for a track's
// natural end.
func (l Level) Interrupts() bool {
	return l == LevelOverride
}

// EmergencyAssetID is the pseudo asset id reported for the built-in
// emergency loop, which lives outside the asset store.
const EmergencyAssetID = "emergency-loop"

// Selection is the chain's answer for one boundary.
type Selection struct {
	Level   Level
	AssetID string
	Title   string
	Path    string       // absolute path for the playout engine
	Entry   *queue.Entry // nil for bed/safety/emergency selections
}

// Chain evaluates the fallback levels against the queues and asset store.
type Chain struct {
	queues        *queue.Manager
	guard         *freshness.Guard
	store         *assets.Store
	signal        *Signal
	emergencyPath string
	bus           *events.Bus
	logger        zerolog.Logger

	mu        sync.Mutex
	current   Level
	bedCursor int
	safCursor int
}

// NewChain constructs the chain. The initial state is the guaranteed-safe
// bottom of the ladder; higher levels take over as producers fill queues.
func NewChain(queues *queue.Manager, guard *freshness.Guard, store *assets.Store, signal *Signal, emergencyPath string, bus *events.Bus, logger zerolog.Logger) *Chain {
	return &Chain{
		queues:        queues,
		guard:         guard,
		store:         store,
		signal:        signal,
		emergencyPath: emergencyPath,
		bus:           bus,
		logger:        logger,
		current:       LevelEmergency,
	}
}

// Current returns the most recently selected level.
func (c *Chain) Current() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Signal returns the force-break signal.
func (c *Chain) Signal() *Signal {
	return c.signal
}

// Next evaluates the full chain at a track boundary and returns the
// highest-priority ready candidate. It never returns nil without error:
// the emergency level is always available.
func (c *Chain) Next(ctx context.Context) (*Selection, error) {
	if sel, err := c.overrideCandidate(ctx); err != nil {
		return nil, err
	} else if sel != nil {
		return c.commit(sel), nil
	}

	if sel, err := c.breakCandidate(ctx); err != nil {
		return nil, err
	} else if sel != nil {
		return c.commit(sel), nil
	}

	if sel, err := c.musicCandidate(ctx); err != nil {
		return nil, err
	} else if sel != nil {
		return c.commit(sel), nil
	}

	if sel := c.rotationCandidate(ctx, models.AssetBed, LevelBed, &c.bedCursor); sel != nil {
		return c.commit(sel), nil
	}
	if sel := c.rotationCandidate(ctx, models.AssetSafety, LevelSafety, &c.safCursor); sel != nil {
		return c.commit(sel), nil
	}

	return c.commit(&Selection{
		Level:   LevelEmergency,
		AssetID: EmergencyAssetID,
		Title:   "emergency loop",
		Path:    c.emergencyPath,
	}), nil
}

// CheckOverride is the mid-track pre-emption probe: it returns a
// selection only when the override queue has a ready entry, and nil
// otherwise. No lower level is considered because no other level may
// interrupt a playing track.
func (c *Chain) CheckOverride(ctx context.Context) (*Selection, error) {
	sel, err := c.overrideCandidate(ctx)
	if err != nil || sel == nil {
		return nil, err
	}
	if c.bus != nil {
		c.bus.Publish(events.EventOverridePending, events.Payload{"asset": sel.AssetID})
	}
	return c.commit(sel), nil
}

func (c *Chain) overrideCandidate(ctx context.Context) (*Selection, error) {
	return c.queueCandidate(ctx, models.QueueOverride, LevelOverride, false)
}

func (c *Chain) breakCandidate(ctx context.Context) (*Selection, error) {
	return c.queueCandidate(ctx, models.QueueBreaks, LevelForcedBreak, true)
}

func (c *Chain) musicCandidate(ctx context.Context) (*Selection, error) {
	return c.queueCandidate(ctx, models.QueueMusic, LevelMusic, false)
}

// queueCandidate returns the oldest playable entry from the queue, or nil
// when the level is effectively empty. Entries whose assets vanished and,
// for breaks, entries failing the freshness guard are skipped in place:
// they age out instead of poisoning the level.
func (c *Chain) queueCandidate(ctx context.Context, q models.QueueName, level Level, guarded bool) (*Selection, error) {
	entries, err := c.queues.Entries(q)
	if err != nil {
		return nil, fmt.Errorf("scan %s queue: %w", q, err)
	}

	for i := range entries {
		entry := &entries[i]
		if guarded && !c.guard.Fresh(entry) {
			if c.bus != nil {
				c.bus.Publish(events.EventBreakStale, events.Payload{"asset": entry.AssetID})
			}
			continue
		}

		asset, err := c.store.Get(ctx, entry.AssetID)
		if errors.Is(err, assets.ErrNotFound) {
			c.logger.Warn().
				Str("queue", string(q)).
				Str("asset", entry.AssetID).
				Msg("queued asset missing from store, skipping")
			continue
		}
		if err != nil {
			return nil, err
		}

		return &Selection{
			Level:   level,
			AssetID: asset.ID,
			Title:   asset.Title,
			Path:    c.store.AbsolutePath(asset),
			Entry:   entry,
		}, nil
	}
	return nil, nil
}

// rotationCandidate cycles through bed or safety assets. These levels
// draw straight from the store: they have no queue and no destructive
// consumption.
func (c *Chain) rotationCandidate(ctx context.Context, kind models.AssetKind, level Level, cursor *int) *Selection {
	list, err := c.store.ListByKind(ctx, kind)
	if err != nil {
		c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("asset listing failed")
		return nil
	}
	if len(list) == 0 {
		return nil
	}

	c.mu.Lock()
	asset := list[*cursor%len(list)]
	*cursor++
	c.mu.Unlock()

	return &Selection{
		Level:   level,
		AssetID: asset.ID,
		Title:   asset.Title,
		Path:    c.store.AbsolutePath(&asset),
	}
}

func (c *Chain) commit(sel *Selection) *Selection {
	c.mu.Lock()
	previous := c.current
	c.current = sel.Level
	c.mu.Unlock()

	telemetry.ChainLevel.Set(float64(sel.Level))
	telemetry.ChainSelectionsTotal.WithLabelValues(sel.Level.String()).Inc()

	if previous != sel.Level {
		c.logger.Info().
			Str("from", previous.String()).
			Str("to", sel.Level.String()).
			Str("asset", sel.AssetID).
			Msg("fallback level changed")
		if c.bus != nil {
			c.bus.Publish(events.EventChainTransition, events.Payload{
				"from":  previous.String(),
				"to":    sel.Level.String(),
				"asset": sel.AssetID,
			})
		}
	}
	return sel
}
