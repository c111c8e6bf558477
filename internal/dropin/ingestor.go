/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dropin watches the inbox directory for operator-dropped audio
// and feeds it into the override queue. A file is picked up only after
// its writes have settled, so a slow copy never gets ingested half-way.
// Ingested and rejected files both leave the inbox: moving them into the
// processed directory is the acknowledgement.
package dropin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn/internal/assets"
	"github.com/friendsincode/muninn/internal/events"
	"github.com/friendsincode/muninn/internal/handoff"
	"github.com/friendsincode/muninn/internal/models"
	"github.com/friendsincode/muninn/internal/queue"
	"github.com/friendsincode/muninn/internal/telemetry"
)

// Ingestor owns the inbox directory.
type Ingestor struct {
	inbox      string
	processed  string
	settle     time.Duration
	extensions map[string]struct{}
	store      *assets.Store
	queues     *queue.Manager
	bus        *events.Bus
	logger     zerolog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates an ingestor. extensions lists the accepted file suffixes,
// compared case-insensitively.
func New(inbox, processed string, settle time.Duration, extensions []string, store *assets.Store, queues *queue.Manager, bus *events.Bus, logger zerolog.Logger) (*Ingestor, error) {
	for _, dir := range []string{inbox, processed} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}

	return &Ingestor{
		inbox:      inbox,
		processed:  processed,
		settle:     settle,
		extensions: exts,
		store:      store,
		queues:     queues,
		bus:        bus,
		logger:     logger,
		timers:     make(map[string]*time.Timer),
	}, nil
}

// Run watches the inbox until the context is cancelled. Files already
// present at startup are swept through the same settle path, which covers
// drops made while the process was down.
func (i *Ingestor) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(i.inbox); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}

	if err := i.Sweep(ctx); err != nil {
		i.logger.Warn().Err(err).Msg("inbox startup sweep failed")
	}

	i.logger.Info().Str("inbox", i.inbox).Msg("drop-in ingestor running")
	for {
		select {
		case <-ctx.Done():
			i.cancelTimers()
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				i.schedule(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			i.logger.Warn().Err(err).Msg("inbox watcher error")
		}
	}
}

// Sweep runs every file currently in the inbox through the settle path.
func (i *Ingestor) Sweep(ctx context.Context) error {
	entries, err := os.ReadDir(i.inbox)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		i.schedule(ctx, filepath.Join(i.inbox, entry.Name()))
	}
	return nil
}

// schedule (re)arms the settle timer for a file. Every write event pushes
// the deadline out again; ingestion happens only once the file has been
// quiet for the full settle interval.
func (i *Ingestor) schedule(ctx context.Context, path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if timer, ok := i.timers[path]; ok {
		timer.Reset(i.settle)
		return
	}
	i.timers[path] = time.AfterFunc(i.settle, func() {
		i.mu.Lock()
		delete(i.timers, path)
		i.mu.Unlock()

		if err := i.ingest(ctx, path); err != nil {
			i.logger.Error().Err(err).Str("file", name).Msg("drop-in ingest failed")
		}
	})
}

func (i *Ingestor) cancelTimers() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for path, timer := range i.timers {
		timer.Stop()
		delete(i.timers, path)
	}
}

func (i *Ingestor) ingest(ctx context.Context, path string) error {
	name := filepath.Base(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Removed while settling.
		return nil
	}

	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := i.extensions[ext]; !ok {
		return i.reject(path, "extension")
	}

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open drop-in: %w", err)
	}
	title := strings.TrimSuffix(name, filepath.Ext(name))
	asset, err := i.store.Register(ctx, models.AssetMusic, title, ext, src)
	src.Close()
	if err != nil {
		telemetry.DropinsRejectedTotal.WithLabelValues("register").Inc()
		return fmt.Errorf("register drop-in: %w", err)
	}

	if _, err := i.queues.Push(models.QueueOverride, asset.ID, time.Now()); err != nil {
		return fmt.Errorf("enqueue drop-in: %w", err)
	}

	// Moving into processed/ acknowledges the ingest; until the rename the
	// file stays in the inbox and a crash replays it from the sweep.
	if _, err := handoff.Move(i.processed, name, path); err != nil {
		return fmt.Errorf("acknowledge drop-in: %w", err)
	}

	telemetry.DropinsIngestedTotal.Inc()
	i.logger.Info().
		Str("file", name).
		Str("asset", asset.ID).
		Msg("drop-in ingested to override queue")
	if i.bus != nil {
		i.bus.Publish(events.EventDropinIngested, events.Payload{
			"file":  name,
			"asset": asset.ID,
		})
	}
	return nil
}

// reject moves an unacceptable file out of the inbox so it cannot be
// re-picked forever, keeping it around for the operator to inspect.
func (i *Ingestor) reject(path, reason string) error {
	name := "rejected-" + filepath.Base(path)
	if _, err := handoff.Move(i.processed, name, path); err != nil {
		return fmt.Errorf("move rejected drop-in: %w", err)
	}

	telemetry.DropinsRejectedTotal.WithLabelValues(reason).Inc()
	i.logger.Warn().
		Str("file", filepath.Base(path)).
		Str("reason", reason).
		Msg("drop-in rejected")
	if i.bus != nil {
		i.bus.Publish(events.EventDropinRejected, events.Payload{
			"file":   filepath.Base(path),
			"reason": reason,
		})
	}
	return nil
}
