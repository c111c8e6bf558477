/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/muninn/internal/assets"
	"github.com/friendsincode/muninn/internal/fallback"
	"github.com/friendsincode/muninn/internal/freshness"
	"github.com/friendsincode/muninn/internal/ledger"
	"github.com/friendsincode/muninn/internal/models"
	"github.com/friendsincode/muninn/internal/queue"
)

type harness struct {
	driver *Driver
	queues *queue.Manager
	store  *assets.Store
	ledger *ledger.Ledger
	signal *fallback.Signal
	db     *gorm.DB
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Asset{}, &models.PlayHistory{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store, err := assets.NewStore(db, t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	queues, err := queue.NewManager(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	guard := freshness.NewGuard(65*time.Minute, zerolog.Nop())
	signal := fallback.NewSignal(filepath.Join(t.TempDir(), "force_break"), zerolog.Nop())
	chain := fallback.NewChain(queues, guard, store, signal, "/srv/emergency.ogg", nil, zerolog.Nop())
	led := ledger.New(db, zerolog.Nop())

	return &harness{
		driver: NewDriver(chain, queues, store, led, nil, zerolog.Nop()),
		queues: queues,
		store:  store,
		ledger: led,
		signal: signal,
		db:     db,
	}
}

func (h *harness) push(t *testing.T, q models.QueueName, kind models.AssetKind, body string) *models.Asset {
	t.Helper()
	asset, err := h.store.Register(context.Background(), kind, body, ".mp3", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := h.queues.Push(q, asset.ID, time.Now()); err != nil {
		t.Fatalf("Push: %v", err)
	}
	time.Sleep(time.Millisecond)
	return asset
}

// The full loop: music plays, an override lands mid-track and pre-empts
// at the next probe, and after the override is consumed the chain
// reverts to whatever is left.
func TestOverridePreemptionRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	trackA := h.push(t, models.QueueMusic, models.AssetMusic, "track-a")
	trackB := h.push(t, models.QueueMusic, models.AssetMusic, "track-b")

	sel, err := h.driver.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if sel.Level != fallback.LevelMusic || sel.AssetID != trackA.ID {
		t.Fatalf("selection = %s/%s, want music/%s", sel.Level, sel.AssetID, trackA.ID)
	}
	if err := h.driver.HandleTrackStart(ctx, TrackStart{AssetID: sel.AssetID, Queue: string(models.QueueMusic)}); err != nil {
		t.Fatalf("HandleTrackStart: %v", err)
	}

	// Mid-track: no override queued yet, the probe stays quiet.
	if probe, _ := h.driver.CheckInterrupt(ctx); probe != nil {
		t.Fatalf("CheckInterrupt = %+v, want nil", probe)
	}

	drop := h.push(t, models.QueueOverride, models.AssetMusic, "urgent-announcement")
	probe, err := h.driver.CheckInterrupt(ctx)
	if err != nil {
		t.Fatalf("CheckInterrupt: %v", err)
	}
	if probe == nil || probe.AssetID != drop.ID {
		t.Fatalf("probe = %+v, want the override entry", probe)
	}
	if err := h.driver.HandleTrackStart(ctx, TrackStart{AssetID: drop.ID, Queue: string(models.QueueOverride)}); err != nil {
		t.Fatalf("HandleTrackStart: %v", err)
	}

	// Override consumed: the chain reverts to the remaining music entry.
	sel, err = h.driver.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if sel.Level != fallback.LevelMusic || sel.AssetID != trackB.ID {
		t.Fatalf("selection = %s/%s, want music/%s after override", sel.Level, sel.AssetID, trackB.ID)
	}
}

func TestTrackStartWritesLedgerAndPops(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	track := h.push(t, models.QueueMusic, models.AssetMusic, "track-a")
	started := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	err := h.driver.HandleTrackStart(ctx, TrackStart{
		AssetID:   track.ID,
		Queue:     string(models.QueueMusic),
		StartedAt: started,
		Metadata:  map[string]any{"source": "test"},
	})
	if err != nil {
		t.Fatalf("HandleTrackStart: %v", err)
	}

	if depth := h.queues.Depth(models.QueueMusic); depth != 0 {
		t.Errorf("music depth = %d, want 0 after pop-on-play", depth)
	}

	var rows []models.PlayHistory
	if err := h.db.Find(&rows).Error; err != nil {
		t.Fatalf("query ledger: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	if rows[0].AssetID != track.ID || rows[0].Queue != models.QueueMusic {
		t.Errorf("ledger row = %+v", rows[0])
	}
	if !rows[0].StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", rows[0].StartedAt, started)
	}
}

func TestBreakStartConsumesForceSignal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.signal.Set(); err != nil {
		t.Fatalf("Set: %v", err)
	}
	brk := h.push(t, models.QueueBreaks, models.AssetBreak, "hourly-break")

	if err := h.driver.HandleTrackStart(ctx, TrackStart{AssetID: brk.ID, Queue: string(models.QueueBreaks)}); err != nil {
		t.Fatalf("HandleTrackStart: %v", err)
	}
	if h.signal.IsSet() {
		t.Error("force-break signal should be consumed when a break starts")
	}
}

func TestTrackStartToleratesUnqueuedAsset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	asset, err := h.store.Register(ctx, models.AssetMusic, "orphan", ".mp3", strings.NewReader("orphan"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// No queue entry exists; the play still has to be recorded.
	if err := h.driver.HandleTrackStart(ctx, TrackStart{AssetID: asset.ID, Queue: string(models.QueueMusic)}); err != nil {
		t.Fatalf("HandleTrackStart: %v", err)
	}

	var count int64
	h.db.Model(&models.PlayHistory{}).Count(&count)
	if count != 1 {
		t.Errorf("ledger rows = %d, want 1", count)
	}
}

func TestTrackStartRejectsBadReports(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.driver.HandleTrackStart(ctx, TrackStart{}); err == nil {
		t.Error("empty asset id should be rejected")
	}
	if err := h.driver.HandleTrackStart(ctx, TrackStart{AssetID: "x", Queue: "bogus"}); err == nil {
		t.Error("unknown queue should be rejected")
	}
}

func TestUnqueuedLevelsSkipQueueHandling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Bed/safety/emergency report without a queue name.
	err := h.driver.HandleTrackStart(ctx, TrackStart{AssetID: fallback.EmergencyAssetID})
	if err != nil {
		t.Fatalf("HandleTrackStart: %v", err)
	}

	var row models.PlayHistory
	if err := h.db.First(&row).Error; err != nil {
		t.Fatalf("query ledger: %v", err)
	}
	if row.Title != "emergency loop" {
		t.Errorf("title = %q, want emergency loop", row.Title)
	}
}
