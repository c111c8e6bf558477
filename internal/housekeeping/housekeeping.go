/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package housekeeping is the scheduled cleanup job: expired break assets,
// orphaned queue entry docs, old log files, ledger rows past retention,
// abandoned hand-off temp files. It watches disk usage of the media
// filesystem and shortens the
// break retention window while the high-water mark is breached. Safety
// and bed content is never touched; the asset store enforces that
// independently.
package housekeeping

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/friendsincode/muninn/internal/assets"
	"github.com/friendsincode/muninn/internal/config"
	"github.com/friendsincode/muninn/internal/events"
	"github.com/friendsincode/muninn/internal/handoff"
	"github.com/friendsincode/muninn/internal/ledger"
	"github.com/friendsincode/muninn/internal/models"
	"github.com/friendsincode/muninn/internal/queue"
	"github.com/friendsincode/muninn/internal/storage"
	"github.com/friendsincode/muninn/internal/telemetry"
)

// Keeper runs one housekeeping pass per scheduled invocation.
type Keeper struct {
	store     *assets.Store
	ledger    *ledger.Ledger
	queues    *queue.Manager
	policy    config.Policy
	mediaRoot string
	spoolRoot string
	logDir    string
	archive   storage.Archive // nil disables archival
	bus       *events.Bus
	logger    zerolog.Logger

	usage func(path string) (float64, error)
	now   func() time.Time
}

// New creates a housekeeping keeper. archive may be nil.
func New(store *assets.Store, led *ledger.Ledger, queues *queue.Manager, policy config.Policy, mediaRoot, spoolRoot, logDir string, archive storage.Archive, bus *events.Bus, logger zerolog.Logger) *Keeper {
	return &Keeper{
		store:     store,
		ledger:    led,
		queues:    queues,
		policy:    policy,
		mediaRoot: mediaRoot,
		spoolRoot: spoolRoot,
		logDir:    logDir,
		archive:   archive,
		bus:       bus,
		logger:    logger,
		usage:     diskUsagePercent,
		now:       time.Now,
	}
}

// WithUsage overrides the disk usage probe, for tests.
func (k *Keeper) WithUsage(usage func(string) (float64, error)) *Keeper {
	k.usage = usage
	return k
}

// Run is the scheduled job body. Each sub-task is independent: a failure
// in one is logged and the rest still run, so a bad disk probe cannot
// stop log pruning.
func (k *Keeper) Run(ctx context.Context) error {
	escalated := k.checkDiskPressure()

	if err := k.pruneBreaks(ctx, escalated); err != nil {
		k.logger.Error().Err(err).Msg("break pruning failed")
	}
	if err := k.sweepOrphanedEntries(ctx, escalated); err != nil {
		k.logger.Error().Err(err).Msg("queue entry sweep failed")
	}
	if err := k.pruneLogs(); err != nil {
		k.logger.Error().Err(err).Msg("log pruning failed")
	}
	if _, err := k.ledger.Prune(ctx, k.now().Add(-k.policy.LedgerRetention()), k.policy.SelectorWindow()); err != nil {
		k.logger.Error().Err(err).Msg("ledger pruning failed")
	}
	k.sweepTempFiles()
	return nil
}

// checkDiskPressure samples media filesystem usage and reports whether
// retention should run escalated.
func (k *Keeper) checkDiskPressure() bool {
	percent, err := k.usage(k.mediaRoot)
	if err != nil {
		k.logger.Warn().Err(err).Msg("disk usage probe failed")
		return false
	}

	telemetry.DiskUsagePercent.Set(percent)
	if percent < float64(k.policy.DiskHighWaterPercent) {
		return false
	}

	telemetry.DiskPressureAlertsTotal.Inc()
	k.logger.Warn().
		Float64("used_percent", percent).
		Int("high_water", k.policy.DiskHighWaterPercent).
		Msg("disk high-water breached, escalating retention")
	if k.bus != nil {
		k.bus.Publish(events.EventDiskPressure, events.Payload{
			"used_percent": percent,
			"high_water":   k.policy.DiskHighWaterPercent,
		})
	}
	return true
}

// pruneBreaks deletes break assets past retention, archiving each one
// first when an archive tier is configured. Archive failures skip the
// delete: content is never lost to a flaky archive.
func (k *Keeper) pruneBreaks(ctx context.Context, escalated bool) error {
	cutoff := k.now().Add(-k.policy.BreakRetention(escalated))
	expired, err := k.store.ListOlderThan(ctx, models.AssetBreak, cutoff)
	if err != nil {
		return err
	}

	for _, asset := range expired {
		if k.archive != nil {
			if err := k.archiveAsset(ctx, &asset); err != nil {
				k.logger.Warn().Err(err).Str("asset", asset.ID).Msg("archive failed, keeping asset")
				continue
			}
		}
		if err := k.store.Delete(ctx, asset.ID); err != nil {
			if errors.Is(err, assets.ErrProtectedKind) {
				continue
			}
			return err
		}
		telemetry.AssetsPrunedTotal.WithLabelValues(string(asset.Kind)).Inc()
	}

	if len(expired) > 0 {
		k.logger.Info().
			Int("pruned", len(expired)).
			Bool("escalated", escalated).
			Msg("expired breaks pruned")
	}
	return nil
}

// sweepOrphanedEntries drops spool docs that can never play. A doc
// orphans two ways: its asset was pruned, or a break entry outlived the
// retention window while the engine was stalled and the chain kept
// skipping it as stale. PopOnPlay never fires for either, so without
// this pass the docs would accumulate for the life of the process.
func (k *Keeper) sweepOrphanedEntries(ctx context.Context, escalated bool) error {
	breakCutoff := k.now().Add(-k.policy.BreakRetention(escalated))

	removed := 0
	for _, q := range []models.QueueName{models.QueueOverride, models.QueueBreaks, models.QueueMusic} {
		entries, err := k.queues.Entries(q)
		if err != nil {
			return err
		}
		for i := range entries {
			entry := &entries[i]

			discard := q == models.QueueBreaks && entry.EnqueuedAt.Before(breakCutoff)
			if !discard {
				_, err := k.store.Get(ctx, entry.AssetID)
				if err == nil {
					continue
				}
				if !errors.Is(err, assets.ErrNotFound) {
					return err
				}
				discard = true
			}

			if err := k.queues.Discard(entry); err != nil {
				k.logger.Warn().Err(err).Str("asset", entry.AssetID).Msg("entry discard failed")
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		k.logger.Info().Int("removed", removed).Msg("orphaned queue entries swept")
	}
	return nil
}

func (k *Keeper) archiveAsset(ctx context.Context, asset *models.Asset) error {
	f, err := k.store.Open(asset)
	if err != nil {
		return err
	}
	defer f.Close()
	return k.archive.Store(ctx, asset.Path, f)
}

// pruneLogs removes station log files whose modification time is past the
// log retention window.
func (k *Keeper) pruneLogs() error {
	entries, err := os.ReadDir(k.logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := k.now().Add(-k.policy.LogRetention())
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(k.logDir, entry.Name())); err == nil {
			removed++
		}
	}

	if removed > 0 {
		k.logger.Info().Int("removed", removed).Msg("old log files pruned")
	}
	return nil
}

// sweepTempFiles clears abandoned hand-off temp files from the spool and
// media trees. Anything older than an hour was left by a crashed writer.
func (k *Keeper) sweepTempFiles() {
	stale := func(info os.FileInfo) bool {
		return k.now().Sub(info.ModTime()) > time.Hour
	}

	dirs := []string{k.spoolRoot}
	for _, q := range []models.QueueName{models.QueueOverride, models.QueueBreaks, models.QueueMusic} {
		dirs = append(dirs, filepath.Join(k.spoolRoot, string(q)))
	}
	for _, kind := range []models.AssetKind{models.AssetMusic, models.AssetBreak, models.AssetBed, models.AssetSafety} {
		dirs = append(dirs, filepath.Join(k.mediaRoot, string(kind)))
	}

	total := 0
	for _, dir := range dirs {
		n, err := handoff.SweepTemp(dir, stale)
		if err != nil {
			k.logger.Warn().Err(err).Str("dir", dir).Msg("temp sweep failed")
			continue
		}
		total += n
	}
	if total > 0 {
		k.logger.Info().Int("removed", total).Msg("abandoned temp files swept")
	}
}

func diskUsagePercent(path string) (float64, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return stat.UsedPercent, nil
}
