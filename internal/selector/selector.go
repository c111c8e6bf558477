/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package selector chooses which music tracks enter the queue. It excludes
// recently played tracks and degrades to least-recently-played ordering
// when the library is too small, so selection never blocks playout.
package selector

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/assets"
	"github.com/friendsincode/muninn/internal/ledger"
	"github.com/friendsincode/muninn/internal/models"
)

// Selector implements the anti-repetition policy.
type Selector struct {
	store       *assets.Store
	ledger      *ledger.Ledger
	window      time.Duration
	maxLookback int
	logger      zerolog.Logger
	rng         *rand.Rand
}

// New creates a selector with the given lookback window and row bound.
func New(store *assets.Store, led *ledger.Ledger, window time.Duration, maxLookback int, logger zerolog.Logger) *Selector {
	return &Selector{
		store:       store,
		ledger:      led,
		window:      window,
		maxLookback: maxLookback,
		logger:      logger,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSeed fixes the random source, for tests.
func (s *Selector) WithSeed(seed int64) *Selector {
	s.rng = rand.New(rand.NewSource(seed))
	return s
}

// Pick returns up to n music assets not drawn from the recently played
// set. The exclusion set is recomputed on every call so it always reflects
// the current ledger. With an empty library Pick returns nil, nil: the
// refill producer simply enqueues nothing.
func (s *Selector) Pick(ctx context.Context, n int) ([]models.Asset, error) {
	if n <= 0 {
		return nil, nil
	}

	library, err := s.store.ListByKind(ctx, models.AssetMusic)
	if err != nil {
		return nil, fmt.Errorf("list music assets: %w", err)
	}
	if len(library) == 0 {
		s.logger.Debug().Msg("music library empty, selector no-op")
		return nil, nil
	}

	recent, err := s.ledger.RecentMusicIDs(ctx, s.window, s.maxLookback)
	if err != nil {
		return nil, fmt.Errorf("recent plays: %w", err)
	}

	eligible := make([]models.Asset, 0, len(library))
	excluded := make([]models.Asset, 0, len(recent))
	for _, asset := range library {
		if _, played := recent[asset.ID]; played {
			excluded = append(excluded, asset)
		} else {
			eligible = append(eligible, asset)
		}
	}

	s.rng.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	if len(eligible) >= n {
		return eligible[:n], nil
	}

	// Small library: supplement from the excluded set in least-recently-
	// played order rather than failing. Repetition degrades, never blocks.
	picked := eligible
	remainder := n - len(picked)

	lastPlayed, err := s.ledger.LastPlayed(ctx)
	if err != nil {
		return nil, fmt.Errorf("last played: %w", err)
	}
	sort.SliceStable(excluded, func(i, j int) bool {
		return lastPlayed[excluded[i].ID].Before(lastPlayed[excluded[j].ID])
	})

	if remainder > len(excluded) {
		remainder = len(excluded)
	}
	picked = append(picked, excluded[:remainder]...)

	if len(picked) < n {
		s.logger.Debug().
			Int("requested", n).
			Int("selected", len(picked)).
			Msg("library smaller than refill request")
	}
	return picked, nil
}
