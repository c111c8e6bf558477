/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ledger is the append-only record of what actually played.
// Writers only append; the anti-repetition selector and operators read
// snapshots. Rows are written by the component observing track-start
// events from the playout engine, nothing else.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn/internal/models"
)

// Ledger provides append and snapshot queries over play history.
type Ledger struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a ledger backed by the given database.
func New(db *gorm.DB, logger zerolog.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// Append records a playback-start event.
func (l *Ledger) Append(ctx context.Context, assetID string, q models.QueueName, title string, startedAt time.Time, meta map[string]any) (*models.PlayHistory, error) {
	record := &models.PlayHistory{
		ID:        uuid.NewString(),
		AssetID:   assetID,
		Queue:     q,
		Title:     title,
		StartedAt: startedAt,
		Metadata:  meta,
	}
	if err := l.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("append play record: %w", err)
	}
	return record, nil
}

// RecentMusicIDs returns the distinct asset ids played on the music queue
// within the trailing window, bounded to the most recent maxLookback rows.
func (l *Ledger) RecentMusicIDs(ctx context.Context, window time.Duration, maxLookback int) (map[string]struct{}, error) {
	cutoff := time.Now().Add(-window)

	var rows []models.PlayHistory
	query := l.db.WithContext(ctx).
		Where("queue = ?", models.QueueMusic).
		Where("started_at >= ?", cutoff).
		Order("started_at DESC")
	if maxLookback > 0 {
		query = query.Limit(maxLookback)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query recent plays: %w", err)
	}

	ids := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		ids[row.AssetID] = struct{}{}
	}
	return ids, nil
}

// LastPlayed returns each asset's most recent music-queue play time.
// Assets never played are absent from the map.
func (l *Ledger) LastPlayed(ctx context.Context) (map[string]time.Time, error) {
	var rows []models.PlayHistory
	err := l.db.WithContext(ctx).
		Where("queue = ?", models.QueueMusic).
		Order("started_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query play history: %w", err)
	}

	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		// Ascending order: later rows overwrite with the newest time.
		out[row.AssetID] = row.StartedAt
	}
	return out, nil
}

// Prune deletes records older than cutoff, but never inside the floor
// window: the selector's lookback must always survive housekeeping.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time, floor time.Duration) (int64, error) {
	floorCutoff := time.Now().Add(-floor)
	if cutoff.After(floorCutoff) {
		cutoff = floorCutoff
	}

	result := l.db.WithContext(ctx).
		Where("started_at < ?", cutoff).
		Delete(&models.PlayHistory{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune ledger: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		l.logger.Info().Int64("deleted", result.RowsAffected).Msg("pruned play history")
	}
	return result.RowsAffected, nil
}
